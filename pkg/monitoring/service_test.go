package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsEndpoint(t *testing.T) {
	svc := NewService()
	svc.ObserveSign("plain", "ok")
	svc.ObserveSign("plain", "fail")
	svc.ObserveCaptcha("slide", "ok")
	svc.ObserveLogin("ok")

	mux := http.NewServeMux()
	svc.Setup(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("Cannot fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Actual status (%v) is different from expected (%v)", resp.StatusCode, http.StatusOK)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Cannot read metrics body: %v", err)
	}
	body := string(raw)

	for _, metric := range []string{
		`cxsign_sign_attempts_total{result="ok",variant="plain"} 1`,
		`cxsign_sign_attempts_total{result="fail",variant="plain"} 1`,
		`cxsign_captcha_solved_total{kind="slide",result="ok"} 1`,
		`cxsign_login_total{result="ok"} 1`,
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("Metrics output is missing %q", metric)
		}
	}
}
