package common

type ContextKey int

const (
	TraceIDContextKey ContextKey = iota
	UIDContextKey
)
