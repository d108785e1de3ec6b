package sign

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/location"
	"github.com/cxsign/cxsign/pkg/protocol"
	"github.com/cxsign/cxsign/pkg/session"
)

const captchaIDLen = 32

// PreSignResult is the first-phase outcome: either the activity is
// already signed, or the page's captcha-id and teacher preset (when
// present) for the second phase.
type PreSignResult struct {
	Done      bool
	CaptchaID string
	Preset    *location.LocationWithRange
}

func presignPageSuccess(doc *goquery.Document) bool {
	return strings.TrimSpace(doc.Find("#statuscontent").First().Text()) == "签到成功"
}

func scrapePreset(doc *goquery.Document) *location.LocationWithRange {
	attr := func(id string) string {
		v, _ := doc.Find("#" + id).First().Attr("value")
		return strings.TrimSpace(v)
	}

	lon, lat := attr("locationLongitude"), attr("locationLatitude")
	if len(lon) == 0 || len(lat) == 0 {
		return nil
	}

	rng, err := strconv.Atoi(attr("locationRange"))
	if err != nil {
		rng = 0
	}

	return &location.LocationWithRange{
		Address:   attr("locationText"),
		Longitude: lon,
		Latitude:  lat,
		Range:     rng,
	}
}

func (e *Engine) scrapeCaptchaID(ctx context.Context, sess *session.Session, body string) string {
	if id, ok := common.SubstrAfter(body, "captchaId: '", captchaIDLen); ok {
		return id
	}

	// fallback: the page sometimes loads the id from a shared script
	js, err := sess.Agent().GetString(ctx, sess.Proto().Get(protocol.MySignCaptchaUtils))
	if err != nil {
		slog.DebugContext(ctx, "Cannot fetch captcha utils script", common.ErrAttr(err))
		return ""
	}

	id, _ := common.SubstrAfter(js, "captchaId: '", captchaIDLen)
	return id
}

// analysis runs the two anti-bot probes the web client issues between
// pre-sign and sign. Failures are logged, never fatal; the server only
// checks that the calls happened.
func (e *Engine) analysis(ctx context.Context, sess *session.Session, activeID int64) {
	body, err := sess.Agent().GetString(ctx, sess.Proto().Get(protocol.Analysis)+strconv.FormatInt(activeID, 10))
	if err != nil {
		slog.DebugContext(ctx, "Analysis probe failed", common.ErrAttr(err))
		return
	}

	code, ok := common.SubstrBetween(body, "code='+'", "'")
	if !ok {
		slog.DebugContext(ctx, "Analysis response has no code")
		return
	}

	if _, err := sess.Agent().GetString(ctx, sess.Proto().Get(protocol.Analysis2)+code); err != nil {
		slog.DebugContext(ctx, "Analysis2 probe failed", common.ErrAttr(err))
	}
}

func refreshQrRcode(activeID int64, c, enc string) string {
	return url.QueryEscape(fmt.Sprintf("SIGNIN:aid=%d&source=15&Code=%s&enc=%s", activeID, c, enc))
}

// PreSign runs the first protocol phase for one session: load the
// pre-sign page, short-circuit on an existing success, otherwise
// collect the captcha-id and preset and fire the anti-bot probes.
func (e *Engine) PreSign(ctx context.Context, sess *session.Session, sg *Sign, data *Data) (PreSignResult, error) {
	rawURL := fmt.Sprintf("%s?courseId=%d&classId=%d&activePrimaryId=%d&general=1&sys=1&ls=1&appType=15&tid=&uid=%s&ut=s&isTeacherViewOpen=0",
		sess.Proto().Get(protocol.PreSign), sg.Raw.Course.ID, sg.Raw.Course.ClassID, sg.Raw.ActiveID, sess.UID())

	if sg.Kind == KindQrCodeRefreshing {
		if len(sg.C) == 0 || len(data.Enc) == 0 {
			return PreSignResult{}, fmt.Errorf("%w: refreshing qr without code or enc", common.ErrSignDataNotFound)
		}
		rawURL += "&rcode=" + refreshQrRcode(sg.Raw.ActiveID, sg.C, data.Enc)
	}

	body, err := sess.Agent().GetString(ctx, rawURL)
	if err != nil {
		return PreSignResult{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return PreSignResult{}, fmt.Errorf("%w: pre-sign page: %v", common.ErrParse, err)
	}

	if presignPageSuccess(doc) {
		return PreSignResult{Done: true}, nil
	}

	result := PreSignResult{
		CaptchaID: e.scrapeCaptchaID(ctx, sess, body),
		Preset:    scrapePreset(doc),
	}

	e.analysis(ctx, sess, sg.Raw.ActiveID)
	e.sleep(ctx, presignDelay)

	return result, nil
}
