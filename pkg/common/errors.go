package common

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

var (
	// ErrLoginExpired means the cookie jar no longer authenticates the user.
	// Recoverable by re-login.
	ErrLoginExpired = errors.New("login expired")

	// ErrLoginFailed means credentials were rejected by the server.
	ErrLoginFailed = errors.New("login failed")

	// ErrBadPassword is returned before any network traffic when the raw
	// password cannot be DES-encoded.
	ErrBadPassword = errors.New("password must be 8 to 16 bytes")

	// ErrSignDataNotFound means a sign attempt is missing required data
	// (enc, photo, location or signcode).
	ErrSignDataNotFound = errors.New("sign data not found")

	// ErrParse means the server response had an unexpected shape.
	ErrParse = errors.New("unexpected server response")

	ErrCaptchaVerifyFailed = errors.New("captcha verification failed")
	ErrCaptchaUnsupported  = errors.New("unsupported captcha type")
	ErrCaptchaCanceled     = errors.New("captcha canceled")
	ErrCaptchaRefresh      = errors.New("captcha requested refresh")
)

// ServerError carries the message the server returned for a rejected request.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Msg
}

// StatusError is a non-2xx response where a body was expected.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string {
	return e.err.Error()
}

func (e *fatalError) Unwrap() error {
	return e.err
}

// Fatal marks err so that retry and scan loops short-circuit on it.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err}
}

// IsFatal reports whether err should abort the enclosing retry or scan
// loop. Configuration-caused transport errors (bad URL, unknown scheme,
// DNS) are fatal; plain I/O errors are not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var fe *fatalError
	if errors.As(err, &fe) {
		return true
	}

	if errors.Is(err, ErrCaptchaUnsupported) ||
		errors.Is(err, ErrCaptchaCanceled) ||
		errors.Is(err, ErrSignDataNotFound) ||
		errors.Is(err, ErrBadPassword) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		return true
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		var dnsErr *net.DNSError
		if errors.As(ue.Err, &dnsErr) {
			return true
		}
		var addrErr *net.AddrError
		if errors.As(ue.Err, &addrErr) {
			return true
		}
	}

	return false
}
