package captcha

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cxsign/cxsign/pkg/agent"
	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/protocol"
)

func TestDeriveTokenVector(t *testing.T) {
	const (
		ts         = int64(1733128874649)
		captchaID  = "Qt9FIw9o4pwRjOyqM6yizZBh682qN2TU"
		captchaKey = "0062a52fa1d93307b2bc503883986cf9"
		expected   = "21d29919dc55f9a25b25a9aec531682e%3A1733129174649"
	)

	token := deriveToken(ts, captchaID, KindIconClick, captchaKey)
	if token != expected {
		t.Errorf("Actual token (%v) is different from expected (%v)", token, expected)
	}
}

func TestDeriveSecretsDeterministic(t *testing.T) {
	uuids := []string{
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}
	stream := func() func() string {
		i := 0
		return func() string {
			u := uuids[i%len(uuids)]
			i++
			return u
		}
	}

	s1 := DeriveSecrets(1733128874649, "id", KindSlide, 1733128874650, stream())
	s2 := DeriveSecrets(1733128874649, "id", KindSlide, 1733128874650, stream())

	if s1 != s2 {
		t.Errorf("Actual secrets (%v) are different from expected (%v)", s2, s1)
	}
	if len(s1.CaptchaKey) != 32 {
		t.Errorf("Actual captchaKey length (%v) is different from expected (%v)", len(s1.CaptchaKey), 32)
	}
	if !strings.Contains(s1.Token, "%3A") {
		t.Errorf("Token (%v) is missing the encoded expiry separator", s1.Token)
	}
}

func TestResultFragment(t *testing.T) {
	tests := []struct {
		result   Result
		expected string
	}{
		{Result{Kind: KindSlide, X: 42}, "%5B%7B%22x%22%3A42%7D%5D"},
		{Result{Kind: KindRotate, X: 137}, "%5B%7B%22x%22%3A137%7D%5D"},
		{
			Result{Kind: KindIconClick, Points: []Point{{10, 20}, {30, 40}, {50, 60}}},
			"%5B%7B%22x%22%3A10%2C%22y%22%3A20%7D,%7B%22x%22%3A30%2C%22y%22%3A40%7D,%7B%22x%22%3A50%2C%22y%22%3A60%7D%5D",
		},
		{Result{Kind: KindObstacle, Points: []Point{{7, 8}}}, "%5B%7B%22x%22%3A7%2C%22y%22%3A8%7D%5D"},
		{Result{Kind: KindObstacle}, "%5B%5D"},
	}

	for i, tc := range tests {
		t.Run(fmt.Sprintf("fragment_%v", i), func(t *testing.T) {
			actual := tc.result.Fragment()
			if actual != tc.expected {
				t.Errorf("Actual fragment (%v) is different from expected (%v)", actual, tc.expected)
			}
		})
	}
}

func TestStripJSONP(t *testing.T) {
	tests := []struct {
		body     string
		expected string
		fails    bool
	}{
		{`cb({"t":1})`, `{"t":1}`, false},
		{"  cb({}) ", `{}`, false},
		{`other({"t":1})`, "", true},
		{`cb({"t":1}`, "", true},
	}

	for i, tc := range tests {
		t.Run(fmt.Sprintf("jsonp_%v", i), func(t *testing.T) {
			actual, err := stripJSONP(tc.body, "cb")
			if tc.fails {
				if !errors.Is(err, common.ErrParse) {
					t.Errorf("Actual error (%v) is different from expected (%v)", err, common.ErrParse)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if actual != tc.expected {
				t.Errorf("Actual payload (%v) is different from expected (%v)", actual, tc.expected)
			}
		})
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Cannot encode test image: %v", err)
	}
	return buf.Bytes()
}

func jsonp(payload string) string {
	return callbackName + "(" + payload + ")"
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	proto := protocol.NewDefault()
	proto.Set(protocol.GetServerTime, srv.URL+"/conf")
	proto.Set(protocol.GetCaptcha, srv.URL+"/image")
	proto.Set(protocol.CheckCaptcha, srv.URL+"/check")

	ag, err := agent.New("test-agent")
	if err != nil {
		t.Fatalf("Cannot create agent: %v", err)
	}

	return &Client{
		Agent: ag,
		Proto: proto,
		UUID:  func() string { return "cccccccccccccccccccccccccccccccc" },
		Now:   func() time.Time { return time.UnixMilli(1733128874650) },
	}
}

func TestSolveRoundTrip(t *testing.T) {
	const stubKind = Kind("stub")

	var checks atomic.Int32
	img := pngBytes(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/conf", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, jsonp(`{"t":1733128874649}`))
	})
	var srvURL string
	mux.HandleFunc("/image", func(w http.ResponseWriter, r *http.Request) {
		if ref := r.Header.Get("Referer"); ref != "https://example.invalid/sign" {
			t.Errorf("Actual referer (%v) is different from expected (%v)", ref, "https://example.invalid/sign")
		}
		fmt.Fprint(w, jsonp(`{"token":"chtoken","imageVerificationVo":{"originImage":"`+srvURL+`/img.png"}}`))
	})
	mux.HandleFunc("/img.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Write(img)
	})
	mux.HandleFunc("/check", func(w http.ResponseWriter, r *http.Request) {
		if n := checks.Add(1); n == 1 {
			// first answer rejected, forces a retry round
			fmt.Fprint(w, jsonp(`{}`))
			return
		}
		q := r.URL.Query()
		if q.Get("token") != "chtoken" {
			t.Errorf("Actual token (%v) is different from expected (%v)", q.Get("token"), "chtoken")
		}
		if !strings.Contains(r.URL.RawQuery, "textClickArr=%5B%7B%22x%22%3A11%7D%5D") {
			t.Errorf("Check query (%v) is missing the rendered fragment", r.URL.RawQuery)
		}
		fmt.Fprint(w, jsonp(`{"extraData":"{\"validate\":\"validate_abc\"}"}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	OverrideSolver(stubKind, func(_ context.Context, in *Input) (*Result, error) {
		if in.Background == nil {
			t.Error("Solver input is missing the background image")
		}
		return &Result{X: 11}, nil
	})

	client := newTestClient(t, srv)
	validate, err := client.Solve(context.Background(), stubKind, "captcha-id", "https://example.invalid/sign")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if validate != "validate_abc" {
		t.Errorf("Actual validate (%v) is different from expected (%v)", validate, "validate_abc")
	}
	if n := checks.Load(); n != 2 {
		t.Errorf("Actual check count (%v) is different from expected (%v)", n, 2)
	}
}

func TestSolveUnsupportedKind(t *testing.T) {
	client := &Client{Proto: protocol.NewDefault()}

	_, err := client.Solve(context.Background(), Kind("nobody-registered-this"), "id", "ref")
	if !errors.Is(err, common.ErrCaptchaUnsupported) {
		t.Errorf("Actual error (%v) is different from expected (%v)", err, common.ErrCaptchaUnsupported)
	}
}

func TestSolveCancellationIsFatal(t *testing.T) {
	const stubKind = Kind("stub-cancel")

	mux := http.NewServeMux()
	mux.HandleFunc("/conf", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, jsonp(`{"t":1733128874649}`))
	})
	var srvURL string
	img := pngBytes(t)
	mux.HandleFunc("/image", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, jsonp(`{"token":"chtoken","imageVerificationVo":{"originImage":"`+srvURL+`/img.png"}}`))
	})
	mux.HandleFunc("/img.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Write(img)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	var calls atomic.Int32
	OverrideSolver(stubKind, func(context.Context, *Input) (*Result, error) {
		calls.Add(1)
		return nil, common.ErrCaptchaCanceled
	})

	client := newTestClient(t, srv)
	_, err := client.Solve(context.Background(), stubKind, "captcha-id", "ref")
	if !errors.Is(err, common.ErrCaptchaCanceled) {
		t.Errorf("Actual error (%v) is different from expected (%v)", err, common.ErrCaptchaCanceled)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("Actual solver calls (%v) is different from expected (%v)", n, 1)
	}
}
