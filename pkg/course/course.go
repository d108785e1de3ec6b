// Package course lists the classes a session is enrolled in.
package course

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/protocol"
	"github.com/cxsign/cxsign/pkg/session"
)

// Course is immutable after construction; identity is (ID, ClassID).
type Course struct {
	ID       int64
	ClassID  int64
	Name     string
	Teacher  string
	ImageURL string
}

// Key is the (course, class) pair used for deduplication.
type Key struct {
	ID      int64
	ClassID int64
}

func (c Course) Key() Key {
	return Key{ID: c.ID, ClassID: c.ClassID}
}

type clazzDataResponse struct {
	ChannelList []struct {
		Key     common.FlexString `json:"key"`
		Content struct {
			Course struct {
				Data []struct {
					ID            int64  `json:"id"`
					Name          string `json:"name"`
					TeacherFactor string `json:"teacherfactor"`
					ImageURL      string `json:"imageurl"`
				} `json:"data"`
			} `json:"course"`
		} `json:"content"`
	} `json:"channelList"`
}

// List fetches and parses the course list. A nil channelList means the
// cookie jar no longer authenticates.
func List(ctx context.Context, sess *session.Session) ([]Course, error) {
	rawURL := sess.Proto().Get(protocol.BackClazzData) + "?view=json&rss=1"

	body, err := sess.Agent().GetString(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var resp clazzDataResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("%w: course list: %v", common.ErrParse, err)
	}

	if resp.ChannelList == nil {
		return nil, common.ErrLoginExpired
	}

	seen := make(map[Key]struct{})
	var courses []Course

	for _, ch := range resp.ChannelList {
		classID, err := ch.Key.Int64()
		if err != nil {
			continue
		}

		for _, d := range ch.Content.Course.Data {
			c := Course{
				ID:       d.ID,
				ClassID:  classID,
				Name:     d.Name,
				Teacher:  d.TeacherFactor,
				ImageURL: d.ImageURL,
			}

			if _, dup := seen[c.Key()]; dup {
				continue
			}
			seen[c.Key()] = struct{}{}
			courses = append(courses, c)
		}
	}

	return courses, nil
}
