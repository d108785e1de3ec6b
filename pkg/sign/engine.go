package sign

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cxsign/cxsign/pkg/captcha"
	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/location"
	"github.com/cxsign/cxsign/pkg/pan"
	"github.com/cxsign/cxsign/pkg/protocol"
	"github.com/cxsign/cxsign/pkg/session"
)

const (
	presignDelay = 500 * time.Millisecond

	bodySuccess       = "success"
	bodyAlreadySigned = "您已签到过了"
	validatePrefix    = "validate"

	msgEncExpired  = "enc expired"
	msgNoLocation  = "no available location"
	msgBadSigncode = "signcode/gesture incorrect"

	secondaryCaptcha = captcha.KindSlide
	secondaryReferer = "https://mobilelearn.chaoxing.com"
)

// Engine drives the two-phase sign protocol. Sleep and Now are
// injectable for tests; Rand seeds the preset location shift.
type Engine struct {
	Proto   *protocol.Registry
	Metrics common.Metrics
	Sleep   func(ctx context.Context, d time.Duration)
	Now     func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewEngine(proto *protocol.Registry) *Engine {
	return &Engine{
		Proto:   proto,
		Metrics: common.NullMetrics,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SeedRand pins the location shift to a deterministic stream.
func (e *Engine) SeedRand(seed int64) {
	e.randMu.Lock()
	defer e.randMu.Unlock()

	e.rand = rand.New(rand.NewSource(seed))
}

func (e *Engine) shift(preset location.LocationWithRange) location.Location {
	e.randMu.Lock()
	defer e.randMu.Unlock()

	return preset.Shift(e.rand)
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	if e.Sleep != nil {
		e.Sleep(ctx, d)
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) metrics() common.Metrics {
	if e.Metrics != nil {
		return e.Metrics
	}
	return common.NullMetrics
}

func locationJSON(loc location.Location) string {
	// concatenated, not json-encoded: the server compares these bytes
	return url.QueryEscape(`{"result":"1","address":"` + loc.Address +
		`","latitude":` + loc.Latitude +
		`,"longitude":` + loc.Longitude +
		`,"altitude":` + loc.Altitude + `}`)
}

func (e *Engine) buildURL(sess *session.Session, sg *Sign, data *Data, loc *location.Location, hasPreset bool) (*URLBuilder, error) {
	base := fmt.Sprintf("%s?activeId=%d&uid=%s&clientip=",
		e.Proto.Get(protocol.PptSign), sg.Raw.ActiveID, sess.UID())
	b := NewURLBuilder(base)

	switch sg.Kind {
	case KindPlain:
		b.Append("&latitude=-1&longitude=-1&appType=15&fid=" + sess.Fid() + "&name=" + sess.StudentName())
	case KindPhoto:
		if len(data.PhotoID) == 0 {
			return nil, fmt.Errorf("%w: photo sign without object id", common.ErrSignDataNotFound)
		}
		b.Append("&latitude=-1&longitude=-1&appType=15&fid=" + sess.Fid() +
			"&objectId=" + data.PhotoID + "&name=" + url.QueryEscape(sess.StudentName()))
	case KindLocation:
		if loc == nil {
			return nil, fmt.Errorf("%w: location sign without coordinates", common.ErrSignDataNotFound)
		}
		ifTiJiao := 0
		if hasPreset {
			ifTiJiao = 1
		}
		b.Append("&address=" + url.QueryEscape(loc.Address) +
			"&latitude=" + loc.Latitude +
			"&longitude=" + loc.Longitude +
			"&fid=" + sess.Fid() +
			"&appType=15&ifTiJiao=" + strconv.Itoa(ifTiJiao))
	case KindQrCodeStatic, KindQrCodeRefreshing:
		if len(data.Enc) == 0 {
			return nil, fmt.Errorf("%w: qr sign without enc", common.ErrSignDataNotFound)
		}
		locParam := ""
		if loc != nil {
			locParam = locationJSON(*loc)
		}
		b.Append("&enc=" + data.Enc +
			"&name=" + url.QueryEscape(sess.StudentName()) +
			"&location=" + locParam +
			"&latitude=-1&longitude=-1&fid=" + sess.Fid() + "&appType=15")
	case KindGesture, KindSigncode:
		if len(data.Code) == 0 {
			return nil, fmt.Errorf("%w: gesture/signcode sign without code", common.ErrSignDataNotFound)
		}
		b.Append("&latitude=-1&longitude=-1&appType=15&fid=" + sess.Fid() +
			"&name=" + url.QueryEscape(sess.StudentName()) + "&signCode=" + data.Code)
	default:
		return nil, fmt.Errorf("%w: cannot sign unknown variant", common.ErrSignDataNotFound)
	}

	return b, nil
}

// checkSigncode asks the server whether a gesture or signcode value is
// correct before spending the sign request on it.
func (e *Engine) checkSigncode(ctx context.Context, sess *session.Session, activeID int64, code string) (bool, error) {
	rawURL := fmt.Sprintf("%s?activeId=%d&signCode=%s", e.Proto.Get(protocol.CheckSigncode), activeID, code)

	body, err := sess.Agent().GetString(ctx, rawURL)
	if err != nil {
		return false, err
	}

	var resp struct {
		Result int `json:"result"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return false, fmt.Errorf("%w: signcode check: %v", common.ErrParse, err)
	}

	return resp.Result == 1, nil
}

// interpret maps a raw sign response body to an outcome. The body
// strings are compared verbatim; the server has no structured error
// channel on this endpoint. secondary marks the "validate…" path, with
// enc2 holding whatever followed the prefix (possibly nothing).
func interpret(body string) (outcome Outcome, secondary bool, enc2 string) {
	switch {
	case body == bodySuccess, body == bodyAlreadySigned:
		return Succeeded(), false, ""
	case len(body) == 0:
		return Failed(msgEncExpired), false, ""
	case strings.HasPrefix(body, validatePrefix):
		return Outcome{}, true, body[len(validatePrefix):]
	default:
		return Failed(body), false, ""
	}
}

// signOnce issues the sign GET, following the secondary-verification
// path at most once.
func (e *Engine) signOnce(ctx context.Context, sess *session.Session, b *URLBuilder, captchaID string) (Outcome, error) {
	body, err := sess.Agent().GetString(ctx, b.URL())
	if err != nil {
		return Outcome{}, err
	}

	outcome, secondary, enc2 := interpret(body)
	if !secondary {
		return outcome, nil
	}

	if len(captchaID) == 0 {
		captchaID = e.Proto.Get(protocol.CaptchaID)
	}

	client := &captcha.Client{Agent: sess.Agent(), Proto: e.Proto}
	validate, err := client.Solve(ctx, secondaryCaptcha, captchaID, secondaryReferer)
	if err != nil {
		e.metrics().ObserveCaptcha(string(secondaryCaptcha), "error")
		return Outcome{}, err
	}
	e.metrics().ObserveCaptcha(string(secondaryCaptcha), "ok")

	if len(enc2) > 0 {
		b.WithEnc2(enc2)
	}
	b.WithValidate(validate)

	body, err = sess.Agent().GetString(ctx, b.URL())
	if err != nil {
		return Outcome{}, err
	}

	outcome, secondary, _ = interpret(body)
	if secondary {
		return Failed(body), nil
	}
	return outcome, nil
}

func isLocationRejection(msg string) bool {
	for _, marker := range []string{"位置", "Location", "范围", "location"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// SignSession runs the full two-phase flow for one session.
func (e *Engine) SignSession(ctx context.Context, sess *session.Session, sg *Sign, data *Data) (Outcome, error) {
	ctx = common.UIDContext(ctx, sess.UID())

	if sg.Kind == KindGesture || sg.Kind == KindSigncode {
		if len(data.Code) == 0 {
			return Outcome{}, fmt.Errorf("%w: gesture/signcode sign without code", common.ErrSignDataNotFound)
		}
		ok, err := e.checkSigncode(ctx, sess, sg.Raw.ActiveID, data.Code)
		if err != nil {
			return Outcome{}, err
		}
		if !ok {
			return Failed(msgBadSigncode), nil
		}
	}

	if sg.Kind == KindPhoto && len(data.PhotoID) == 0 {
		objectID, err := pan.FirstMatch(ctx, sess, nil)
		if err != nil {
			return Outcome{}, err
		}
		d := *data
		d.PhotoID = objectID
		data = &d
	}

	pre, err := e.PreSign(ctx, sess, sg, data)
	if err != nil {
		return Outcome{}, err
	}
	if pre.Done {
		slog.InfoContext(ctx, "Already signed", "activity", sg.Raw.Name)
		return Succeeded(), nil
	}

	preset := sg.Preset
	if pre.Preset != nil {
		preset = pre.Preset
	}

	if sg.Kind == KindLocation || sg.Kind == KindQrCodeStatic || sg.Kind == KindQrCodeRefreshing {
		return e.signWithLocations(ctx, sess, sg, data, pre.CaptchaID, preset)
	}

	b, err := e.buildURL(sess, sg, data, nil, false)
	if err != nil {
		return Outcome{}, err
	}

	return e.signOnce(ctx, sess, b, pre.CaptchaID)
}

// signWithLocations tries each location candidate in order: the
// explicit user input first, then the shifted preset. A rejection that
// names the location moves on to the next candidate.
func (e *Engine) signWithLocations(ctx context.Context, sess *session.Session, sg *Sign, data *Data, captchaID string, preset *location.LocationWithRange) (Outcome, error) {
	type candidate struct {
		loc       location.Location
		hasPreset bool
	}

	var candidates []candidate
	if data.Location != nil {
		candidates = append(candidates, candidate{loc: *data.Location})
	}
	if preset != nil {
		candidates = append(candidates, candidate{loc: e.shift(*preset), hasPreset: true})
	}

	if len(candidates) == 0 {
		if sg.Kind == KindLocation {
			return Failed(msgNoLocation), nil
		}
		// qr works without a location payload
		b, err := e.buildURL(sess, sg, data, nil, false)
		if err != nil {
			return Outcome{}, err
		}
		return e.signOnce(ctx, sess, b, captchaID)
	}

	var last Outcome
	for _, c := range candidates {
		b, err := e.buildURL(sess, sg, data, &c.loc, c.hasPreset)
		if err != nil {
			return Outcome{}, err
		}

		outcome, err := e.signOnce(ctx, sess, b, captchaID)
		if err != nil {
			return Outcome{}, err
		}
		if outcome.Success || !isLocationRejection(outcome.Msg) {
			return outcome, nil
		}

		slog.DebugContext(ctx, "Location rejected, trying next candidate", "msg", outcome.Msg)
		last = outcome
	}

	return last, nil
}
