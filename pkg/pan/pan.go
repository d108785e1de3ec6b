// Package pan talks to the cloud drive attached to every account. The
// photo sign variant pulls its default image from here and can upload a
// user-supplied one.
package pan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/protocol"
	"github.com/cxsign/cxsign/pkg/session"
)

// Info is the per-account drive root scraped from the landing page.
type Info struct {
	Enc     string
	RootDir string
}

func scrapeValue(body string, anchors ...string) (string, bool) {
	for _, a := range anchors {
		if v, ok := common.SubstrBetween(body, a, `"`); ok {
			return v, true
		}
	}
	return "", false
}

// FetchInfo loads the drive landing page and extracts the listing enc
// and root directory id from its inline javascript.
func FetchInfo(ctx context.Context, sess *session.Session) (Info, error) {
	body, err := sess.Agent().GetString(ctx, sess.Proto().Get(protocol.PanChaoxing))
	if err != nil {
		return Info{}, err
	}

	enc, ok := scrapeValue(body, `enc ="`, `enc="`)
	if !ok {
		return Info{}, fmt.Errorf("%w: drive page has no enc", common.ErrParse)
	}

	root, ok := scrapeValue(body, `_rootdir = "`, `_rootdir="`)
	if !ok {
		return Info{}, fmt.Errorf("%w: drive page has no root dir", common.ErrParse)
	}

	return Info{Enc: enc, RootDir: root}, nil
}

// Entry is one file in a drive listing.
type Entry struct {
	Name     string `json:"name"`
	ObjectID string `json:"objectId"`
}

type listResponse struct {
	List []Entry `json:"list"`
}

// List returns the root directory contents.
func List(ctx context.Context, sess *session.Session, info Info) ([]Entry, error) {
	rawURL := fmt.Sprintf("%s?puid=0&shareid=0&parentId=%s&page=1&size=50&enc=%s",
		sess.Proto().Get(protocol.PanList), info.RootDir, info.Enc)

	body, err := sess.Agent().GetString(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("%w: drive listing: %v", common.ErrParse, err)
	}

	return resp.List, nil
}

func defaultPhotoName(name string) bool {
	return name == "1.png" || name == "1.jpg"
}

// FirstMatch returns the object id of the first listed file accepted by
// pred. A nil pred selects the conventional default photo names.
func FirstMatch(ctx context.Context, sess *session.Session, pred func(name string) bool) (string, error) {
	if pred == nil {
		pred = defaultPhotoName
	}

	info, err := FetchInfo(ctx, sess)
	if err != nil {
		return "", err
	}

	entries, err := List(ctx, sess, info)
	if err != nil {
		return "", err
	}

	for _, e := range entries {
		if pred(e.Name) {
			return e.ObjectID, nil
		}
	}

	return "", fmt.Errorf("%w: no matching photo in cloud drive", common.ErrSignDataNotFound)
}

type tokenResponse struct {
	Token string `json:"_token"`
}

func fetchToken(ctx context.Context, sess *session.Session) (string, error) {
	body, err := sess.Agent().GetString(ctx, sess.Proto().Get(protocol.PanToken))
	if err != nil {
		return "", err
	}

	var resp tokenResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", fmt.Errorf("%w: drive token: %v", common.ErrParse, err)
	}
	if len(resp.Token) == 0 {
		return "", fmt.Errorf("%w: empty drive token", common.ErrParse)
	}

	return resp.Token, nil
}

type uploadResponse struct {
	ObjectID string `json:"objectId"`
}

// Upload pushes one file to the drive and returns its object id for use
// in a photo sign URL. Fields beyond objectId in the response are not
// stable and are ignored.
func Upload(ctx context.Context, sess *session.Session, fileName string, file io.Reader) (string, error) {
	token, err := fetchToken(ctx, sess)
	if err != nil {
		return "", err
	}

	rawURL := fmt.Sprintf("%s?_from=mobilelearn&_token=%s", sess.Proto().Get(protocol.PanUpload), token)

	resp, err := sess.Agent().PostMultipart(ctx, rawURL, map[string]string{"puid": sess.UID()}, "file", fileName, file)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var up uploadResponse
	if err := json.Unmarshal(body, &up); err != nil {
		return "", fmt.Errorf("%w: drive upload: %v", common.ErrParse, err)
	}
	if len(up.ObjectID) == 0 {
		return "", fmt.Errorf("%w: upload yielded no object id", common.ErrParse)
	}

	return up.ObjectID, nil
}
