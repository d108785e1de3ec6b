// Package agent holds the stateful HTTP client backing one logged-in
// user: a persistent cookie jar, the protocol user-agent and blocking
// GET/POST helpers. Jars are never shared between users.
package agent

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/cxsign/cxsign/pkg/common"
)

type Agent struct {
	client *http.Client
	ua     string
}

func New(userAgent string) (*Agent, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	return &Agent{
		client: &http.Client{Jar: jar},
		ua:     userAgent,
	}, nil
}

func (a *Agent) do(req *http.Request) (*http.Response, error) {
	req.Header[common.HeaderUserAgent] = []string{a.ua}
	return a.client.Do(req)
}

func (a *Agent) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	return a.do(req)
}

func (a *Agent) GetReferer(ctx context.Context, rawURL, referer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header[common.HeaderReferer] = []string{referer}

	return a.do(req)
}

// GetString fetches rawURL and returns the whole body. Non-200 statuses
// are configuration-grade failures for this protocol.
func (a *Agent) GetString(ctx context.Context, rawURL string) (string, error) {
	resp, err := a.Get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &common.StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(body), nil
}

// GetStringReferer is GetString with an explicit Referer header, which
// the captcha endpoints require.
func (a *Agent) GetStringReferer(ctx context.Context, rawURL, referer string) (string, error) {
	resp, err := a.GetReferer(ctx, rawURL, referer)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &common.StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(body), nil
}

func (a *Agent) PostForm(ctx context.Context, rawURL string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header[common.HeaderContentType] = []string{common.ContentTypeURLEncoded}

	return a.do(req)
}

// PostMultipart uploads a single file plus string fields, as the cloud
// drive upload endpoint expects.
func (a *Agent) PostMultipart(ctx context.Context, rawURL string, fields map[string]string, fileField, fileName string, file io.Reader) (*http.Response, error) {
	var buf strings.Builder
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}

	fw, err := w.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, file); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(buf.String()))
	if err != nil {
		return nil, err
	}
	req.Header[common.HeaderContentType] = []string{w.FormDataContentType()}

	return a.do(req)
}

// CookieValue returns the named cookie currently stored for u.
func (a *Agent) CookieValue(u *url.URL, name string) (string, bool) {
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value, true
		}
	}

	return "", false
}

func (a *Agent) SetCookies(u *url.URL, cookies []*http.Cookie) {
	a.client.Jar.SetCookies(u, cookies)
}

func (a *Agent) Cookies(u *url.URL) []*http.Cookie {
	return a.client.Jar.Cookies(u)
}
