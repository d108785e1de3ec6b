package agent

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
)

type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// the jar only hands back name/value pairs per URL; domain and path are
// re-derived from the URL on load
type cookieFile map[string][]savedCookie

// SaveCookies serialises the jar's cookies for the given URLs to path as
// JSON. The file is the per-uid session state under the config dir.
func (a *Agent) SaveCookies(path string, rawURLs []string) error {
	file := make(cookieFile, len(rawURLs))

	for _, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}

		cookies := a.client.Jar.Cookies(u)
		if len(cookies) == 0 {
			continue
		}

		saved := make([]savedCookie, 0, len(cookies))
		for _, c := range cookies {
			saved = append(saved, savedCookie{Name: c.Name, Value: c.Value})
		}
		file[u.Scheme+"://"+u.Host] = saved
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// LoadCookies restores a previously saved jar into the agent.
func (a *Agent) LoadCookies(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file cookieFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}

	for raw, saved := range file {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}

		cookies := make([]*http.Cookie, 0, len(saved))
		for _, s := range saved {
			cookies = append(cookies, &http.Cookie{Name: s.Name, Value: s.Value})
		}
		a.client.Jar.SetCookies(u, cookies)
	}

	return nil
}
