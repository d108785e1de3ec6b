// Package captcha implements the client side of the verification-image
// protocol: secret derivation, challenge fetch, pluggable solvers and
// the server-side check.
package captcha

// Kind is the lowercase captcha type string used throughout the
// protocol URLs and secret derivation.
type Kind string

const (
	KindSlide     Kind = "slide"
	KindTextClick Kind = "textclick"
	KindRotate    Kind = "rotate"
	KindIconClick Kind = "iconclick"
	KindObstacle  Kind = "obstacle"
)

func (k Kind) builtin() bool {
	switch k {
	case KindSlide, KindTextClick, KindRotate, KindIconClick, KindObstacle:
		return true
	default:
		return false
	}
}
