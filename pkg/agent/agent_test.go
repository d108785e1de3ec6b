package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
)

func TestGetSendsUserAgent(t *testing.T) {
	t.Parallel()

	const ua = "cxsign-test/1.0"

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	a, err := New(ua)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.GetString(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}

	if gotUA != ua {
		t.Errorf("Actual user agent (%v) is different from expected (%v)", gotUA, ua)
	}
}

func TestGetStringBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a, err := New("ua")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.GetString(context.Background(), srv.URL); err == nil {
		t.Error("Expected an error for a non-200 status")
	}
}

func TestCookieSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "_uid", Value: "123456"})
		http.SetCookie(w, &http.Cookie{Name: "fid", Value: "99"})
	}))
	defer srv.Close()

	a, err := New("ua")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.GetString(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "123456.json")
	if err := a.SaveCookies(path, []string{srv.URL}); err != nil {
		t.Fatal(err)
	}

	b, err := New("ua")
	if err != nil {
		t.Fatal(err)
	}
	if err := b.LoadCookies(path); err != nil {
		t.Fatal(err)
	}

	u, _ := url.Parse(srv.URL)
	uid, ok := b.CookieValue(u, "_uid")
	if !ok || uid != "123456" {
		t.Errorf("Actual uid cookie (%v, %v) is different from expected (123456, true)", uid, ok)
	}
	fid, ok := b.CookieValue(u, "fid")
	if !ok || fid != "99" {
		t.Errorf("Actual fid cookie (%v, %v) is different from expected (99, true)", fid, ok)
	}
}
