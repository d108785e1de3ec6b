package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/cxsign/cxsign/pkg/agent"
	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/protocol"
)

const (
	callbackName   = "cx_captcha_function"
	clientVersion  = "1.1.20"
	defaultReferer = "https://mobilelearn.chaoxing.com"
)

// Client fetches and verifies challenges on behalf of one session. UUID
// and Now are injectable for deterministic tests and default to
// NewUUID / time.Now.
type Client struct {
	Agent *agent.Agent
	Proto *protocol.Registry
	UUID  func() string
	Now   func() time.Time
}

func (c *Client) uuid() string {
	if c.UUID != nil {
		return c.UUID()
	}
	return NewUUID()
}

func (c *Client) nowMs() int64 {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return now().UnixMilli()
}

// ServerTime asks the conf endpoint for the authoritative timestamp the
// secret derivation has to be seeded with.
func (c *Client) ServerTime(ctx context.Context, captchaID string) (int64, error) {
	reqURL := c.Proto.Get(protocol.GetServerTime) +
		"?callback=" + callbackName +
		"&captchaId=" + captchaID +
		"&_=" + strconv.FormatInt(c.nowMs(), 10)

	body, err := c.Agent.GetString(ctx, reqURL)
	if err != nil {
		return 0, fmt.Errorf("get server time: %w", err)
	}

	payload, err := stripJSONP(body, callbackName)
	if err != nil {
		return 0, err
	}

	var conf struct {
		T int64 `json:"t"`
	}
	if err := json.Unmarshal([]byte(payload), &conf); err != nil {
		return 0, fmt.Errorf("%w: server time payload: %v", common.ErrParse, err)
	}

	return conf.T, nil
}

// Challenge is one fetched verification round. Payload is the opaque
// imageVerificationVo object; its shape differs per kind and is decoded
// lazily by the image loader.
type Challenge struct {
	Kind      Kind
	CaptchaID string
	Token     string
	IV        string
	Payload   json.RawMessage
}

// GetChallenge derives the secret triple from ts and fetches one
// challenge. The referer is echoed both as a query parameter and a
// header; the server rejects requests where they disagree.
func (c *Client) GetChallenge(ctx context.Context, kind Kind, captchaID, referer string, ts int64) (*Challenge, error) {
	secrets := DeriveSecrets(ts, captchaID, kind, c.nowMs(), c.uuid)

	reqURL := c.Proto.Get(protocol.GetCaptcha) +
		"?callback=" + callbackName +
		"&captchaId=" + captchaID +
		"&captchaKey=" + secrets.CaptchaKey +
		"&token=" + secrets.Token +
		"&iv=" + secrets.IV +
		"&type=" + string(kind) +
		"&version=" + clientVersion +
		"&referer=" + url.QueryEscape(referer) +
		"&_=" + strconv.FormatInt(ts+1, 10)

	body, err := c.Agent.GetStringReferer(ctx, reqURL, referer)
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}

	payload, err := stripJSONP(body, callbackName)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Token               string          `json:"token"`
		ImageVerificationVo json.RawMessage `json:"imageVerificationVo"`
	}
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("%w: challenge payload: %v", common.ErrParse, err)
	}
	if len(resp.Token) == 0 {
		return nil, fmt.Errorf("%w: challenge without token", common.ErrParse)
	}

	return &Challenge{
		Kind:      kind,
		CaptchaID: captchaID,
		Token:     resp.Token,
		IV:        secrets.IV,
		Payload:   resp.ImageVerificationVo,
	}, nil
}

// Check submits a rendered solver result and returns the validate value
// the sign flow needs. An empty extraData means the server rejected the
// answer.
func (c *Client) Check(ctx context.Context, ch *Challenge, result *Result, ts int64) (string, error) {
	reqURL := c.Proto.Get(protocol.CheckCaptcha) +
		"?callback=" + callbackName +
		"&captchaId=" + ch.CaptchaID +
		"&token=" + ch.Token +
		"&textClickArr=" + result.Fragment() +
		"&iv=" + ch.IV +
		"&type=" + string(ch.Kind) +
		"&coordinate=%5B%5D" +
		"&version=" + clientVersion +
		"&runEnv=10" +
		"&_=" + strconv.FormatInt(ts+2, 10)

	body, err := c.Agent.GetStringReferer(ctx, reqURL, defaultReferer)
	if err != nil {
		return "", fmt.Errorf("check captcha: %w", err)
	}

	payload, err := stripJSONP(body, callbackName)
	if err != nil {
		return "", err
	}

	var resp struct {
		ExtraData string `json:"extraData"`
	}
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return "", fmt.Errorf("%w: check payload: %v", common.ErrParse, err)
	}
	if len(resp.ExtraData) == 0 {
		return "", common.ErrCaptchaVerifyFailed
	}

	var extra struct {
		Validate string `json:"validate"`
	}
	if err := json.Unmarshal([]byte(resp.ExtraData), &extra); err != nil {
		return "", fmt.Errorf("%w: extraData payload: %v", common.ErrParse, err)
	}
	if len(extra.Validate) == 0 {
		return "", common.ErrCaptchaVerifyFailed
	}

	return extra.Validate, nil
}
