// Package monitoring exports the engine's counters to prometheus. The
// CLI serves them on an opt-in local endpoint; library users can pass
// common.NullMetrics and skip this package entirely.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cxsign/cxsign/pkg/common"
)

const (
	metricsNamespace = "cxsign"

	variantLabel = "variant"
	kindLabel    = "kind"
	resultLabel  = "result"
)

type Service struct {
	Registry *prometheus.Registry

	signCounter    *prometheus.CounterVec
	captchaCounter *prometheus.CounterVec
	loginCounter   *prometheus.CounterVec
}

var _ common.Metrics = (*Service)(nil)

func NewService() *Service {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	signCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sign_attempts_total",
			Help:      "Total number of sign attempts",
		},
		[]string{variantLabel, resultLabel},
	)
	reg.MustRegister(signCounter)

	captchaCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "captcha_solved_total",
			Help:      "Total number of captcha solve attempts",
		},
		[]string{kindLabel, resultLabel},
	)
	reg.MustRegister(captchaCounter)

	loginCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "login_total",
			Help:      "Total number of login attempts",
		},
		[]string{resultLabel},
	)
	reg.MustRegister(loginCounter)

	return &Service{
		Registry:       reg,
		signCounter:    signCounter,
		captchaCounter: captchaCounter,
		loginCounter:   loginCounter,
	}
}

func (s *Service) ObserveSign(variant, result string) {
	s.signCounter.With(prometheus.Labels{
		variantLabel: variant,
		resultLabel:  result,
	}).Inc()
}

func (s *Service) ObserveCaptcha(kind, result string) {
	s.captchaCounter.With(prometheus.Labels{
		kindLabel:   kind,
		resultLabel: result,
	}).Inc()
}

func (s *Service) ObserveLogin(result string) {
	s.loginCounter.With(prometheus.Labels{
		resultLabel: result,
	}).Inc()
}

func (s *Service) Setup(mux *http.ServeMux) {
	mux.Handle(http.MethodGet+" /metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry}))
}
