// Package activity discovers the sign-in activities of a course and
// classifies their raw listing entries.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/course"
	"github.com/cxsign/cxsign/pkg/protocol"
	"github.com/cxsign/cxsign/pkg/session"
)

// window during which a started sign activity is still worth attempting
const validWindow = 2 * time.Hour

// RawSign is a listing entry whose otherId discriminant marks it as a
// sign activity. Classification into a concrete variant needs one more
// request (the sign detail) and lives in pkg/sign.
type RawSign struct {
	ActiveID    int64
	Name        string
	Status      int
	StartTimeMs int64
	// discriminant "0".."5" from the activity listing
	OtherID string
	Course  course.Course
}

// IsValid reports whether the sign can still be attempted: started less
// than two hours before now and still open.
func (r RawSign) IsValid(now time.Time) bool {
	start := time.UnixMilli(r.StartTimeMs)
	return r.Status == 1 && now.Sub(start) < validWindow
}

// OtherActivity is any non-sign entry in the listing.
type OtherActivity struct {
	ActiveID int64
	Name     string
	Course   course.Course
}

// Activities is the classified content of one course's listing.
type Activities struct {
	Signs  []RawSign
	Others []OtherActivity
}

type activeListResponse struct {
	Data *struct {
		ActiveList []struct {
			ID        int64              `json:"id"`
			Name      string             `json:"nameOne"`
			OtherID   *common.FlexString `json:"otherId"`
			Status    int                `json:"status"`
			StartTime int64              `json:"startTime"`
		} `json:"activeList"`
	} `json:"data"`
}

func isSignDiscriminant(s string) bool {
	switch s {
	case "0", "1", "2", "3", "4", "5":
		return true
	default:
		return false
	}
}

// List fetches the per-course activity list and splits it into sign
// activities and everything else.
func List(ctx context.Context, sess *session.Session, c course.Course) (Activities, error) {
	rawURL := fmt.Sprintf("%s?fid=0&courseId=%d&classId=%d&showNotStartedActive=0&_=%d",
		sess.Proto().Get(protocol.ActiveList), c.ID, c.ClassID, time.Now().Unix())

	body, err := sess.Agent().GetString(ctx, rawURL)
	if err != nil {
		return Activities{}, err
	}

	var resp activeListResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return Activities{}, fmt.Errorf("%w: active list: %v", common.ErrParse, err)
	}

	if resp.Data == nil {
		return Activities{}, fmt.Errorf("%w: active list has no data", common.ErrParse)
	}

	var out Activities
	for _, e := range resp.Data.ActiveList {
		if e.OtherID == nil || !isSignDiscriminant(e.OtherID.String()) {
			out.Others = append(out.Others, OtherActivity{
				ActiveID: e.ID,
				Name:     e.Name,
				Course:   c,
			})
			continue
		}

		out.Signs = append(out.Signs, RawSign{
			ActiveID:    e.ID,
			Name:        e.Name,
			Status:      e.Status,
			StartTimeMs: e.StartTime,
			OtherID:     e.OtherID.String(),
			Course:      c,
		})
	}

	return out, nil
}
