package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/course"
	"github.com/cxsign/cxsign/pkg/location"
	"github.com/cxsign/cxsign/pkg/protocol"
	"github.com/cxsign/cxsign/pkg/session"
)

type locationLogResponse struct {
	Data []struct {
		ActiveID      int64             `json:"activeid"`
		Address       string            `json:"address"`
		Longitude     common.FlexString `json:"longitude"`
		Latitude      common.FlexString `json:"latitude"`
		LocationRange common.FlexString `json:"locationrange"`
	} `json:"data"`
}

// PresetLocations fetches the course's location log: the teacher-set
// coordinates for location and QR activities, keyed by active-id.
func PresetLocations(ctx context.Context, sess *session.Session, c course.Course) (map[int64]location.LocationWithRange, error) {
	rawURL := fmt.Sprintf("%s?DB_STRATEGY=COURSEID&STRATEGY_PARA=courseId&courseId=%d&classId=%d",
		sess.Proto().Get(protocol.GetLocationLog), c.ID, c.ClassID)

	body, err := sess.Agent().GetString(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var resp locationLogResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("%w: location log: %v", common.ErrParse, err)
	}

	presets := make(map[int64]location.LocationWithRange, len(resp.Data))
	for _, e := range resp.Data {
		rng, err := e.LocationRange.Int64()
		if err != nil {
			rng = 0
		}

		presets[e.ActiveID] = location.LocationWithRange{
			Address:   e.Address,
			Longitude: e.Longitude.String(),
			Latitude:  e.Latitude.String(),
			Range:     int(rng),
		}
	}

	return presets, nil
}
