package common

import "net/http"

const (
	ContentTypeJSON       = "application/json"
	ContentTypeHTML       = "text/html; charset=utf-8"
	ContentTypeURLEncoded = "application/x-www-form-urlencoded"
)

var (
	HeaderContentType = http.CanonicalHeaderKey("Content-Type")
	HeaderUserAgent   = http.CanonicalHeaderKey("User-Agent")
	HeaderReferer     = http.CanonicalHeaderKey("Referer")
)

// Metrics is implemented by pkg/monitoring; the stub keeps the engine
// usable without a registry.
type Metrics interface {
	ObserveSign(variant, result string)
	ObserveCaptcha(kind, result string)
	ObserveLogin(result string)
}

type nullMetrics struct{}

func (nullMetrics) ObserveSign(string, string)    {}
func (nullMetrics) ObserveCaptcha(string, string) {}
func (nullMetrics) ObserveLogin(string)           {}

var NullMetrics Metrics = nullMetrics{}
