package common

import (
	"context"
	"log/slog"
	"os"

	"github.com/rs/xid"
)

const (
	LevelTrace = slog.Level(-8)
)

type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if tid, ok := ctx.Value(TraceIDContextKey).(string); ok && (len(tid) > 0) {
			r.AddAttrs(TraceIDAttr(tid))
		}

		if uid, ok := ctx.Value(UIDContextKey).(string); ok && (len(uid) > 0) {
			r.AddAttrs(UIDAttr(uid))
		}
	}

	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.Handler.Enabled(ctx, level)
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{h.Handler.WithGroup(name)}
}

func NewTraceID() string {
	return xid.New().String()
}

func TraceContext(ctx context.Context) (context.Context, string) {
	tid, ok := ctx.Value(TraceIDContextKey).(string)
	if !ok || (len(tid) == 0) {
		tid = NewTraceID()
		ctx = context.WithValue(ctx, TraceIDContextKey, tid)
	}

	return ctx, tid
}

func UIDContext(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, UIDContextKey, uid)
}

func SetupLogs(verbose bool) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if verbose {
		opts.Level = LevelTrace
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	ctxHandler := &contextHandler{handler}
	logger := slog.New(ctxHandler)
	slog.SetDefault(logger)
}

func ErrAttr(err error) slog.Attr {
	return slog.Any("error", err)
}

func TraceIDAttr(tid string) slog.Attr {
	return slog.Attr{
		Key:   "traceID",
		Value: slog.StringValue(tid),
	}
}

func UIDAttr(uid string) slog.Attr {
	return slog.Attr{
		Key:   "uid",
		Value: slog.StringValue(uid),
	}
}
