package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/protocol"
	"github.com/cxsign/cxsign/pkg/session"
)

// SignDetail is fetched once per activity before classification.
type SignDetail struct {
	IsPhoto     bool
	IsRefreshQr bool
	// nil when the server omits signCode for this activity
	SignCode *string
}

type signDetailResponse struct {
	IfPhoto      int     `json:"ifPhoto"`
	IfRefreshEwm int     `json:"ifRefreshEwm"`
	SignCode     *string `json:"signCode"`
}

// FetchDetail retrieves the sign detail for one activity.
func FetchDetail(ctx context.Context, sess *session.Session, activeID int64) (SignDetail, error) {
	rawURL := fmt.Sprintf("%s?activePrimaryId=%d&type=1", sess.Proto().Get(protocol.SignDetail), activeID)

	body, err := sess.Agent().GetString(ctx, rawURL)
	if err != nil {
		return SignDetail{}, err
	}

	var resp signDetailResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return SignDetail{}, fmt.Errorf("%w: sign detail: %v", common.ErrParse, err)
	}

	return SignDetail{
		IsPhoto:     resp.IfPhoto > 0,
		IsRefreshQr: resp.IfRefreshEwm > 0,
		SignCode:    resp.SignCode,
	}, nil
}

const (
	detailCacheSize = 1024
	detailCacheTTL  = 10 * time.Minute
)

// DetailCache memoises sign details for the duration of a scan; the
// detail of an activity does not change while it is running.
type DetailCache struct {
	store *otter.Cache[int64, SignDetail]
}

func NewDetailCache() (*DetailCache, error) {
	store, err := otter.New(&otter.Options[int64, SignDetail]{
		MaximumSize:      detailCacheSize,
		ExpiryCalculator: otter.ExpiryWriting[int64, SignDetail](detailCacheTTL),
	})
	if err != nil {
		return nil, err
	}

	return &DetailCache{store: store}, nil
}

func (dc *DetailCache) Get(ctx context.Context, sess *session.Session, activeID int64) (SignDetail, error) {
	detail, err := dc.store.Get(ctx, activeID, otter.LoaderFunc[int64, SignDetail](
		func(ctx context.Context, key int64) (SignDetail, error) {
			return FetchDetail(ctx, sess, key)
		}))
	if err != nil {
		return SignDetail{}, err
	}

	slog.Log(ctx, common.LevelTrace, "Resolved sign detail", "activeID", activeID,
		"photo", detail.IsPhoto, "refreshQr", detail.IsRefreshQr)

	return detail, nil
}
