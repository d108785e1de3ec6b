package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/protocol"
	"github.com/cxsign/cxsign/pkg/session"
)

// AttendState is the server-side attendance record for one activity.
type AttendState int

const (
	AttendUnsigned      AttendState = 0
	AttendSuccess       AttendState = 1
	AttendByTeacher     AttendState = 2
	AttendLeave         AttendState = 4
	AttendAbsent        AttendState = 5
	AttendSickLeave     AttendState = 7
	AttendPersonalLeave AttendState = 8
	AttendLate          AttendState = 9
	AttendLeftEarly     AttendState = 10
	AttendExpired       AttendState = 11
	AttendPublicLeave   AttendState = 12
)

func (s AttendState) String() string {
	switch s {
	case AttendUnsigned:
		return "未签"
	case AttendSuccess:
		return "签到成功"
	case AttendByTeacher:
		return "教师代签"
	case AttendLeave:
		return "请假"
	case AttendAbsent:
		return "缺勤"
	case AttendSickLeave:
		return "病假"
	case AttendPersonalLeave:
		return "事假"
	case AttendLate:
		return "迟到"
	case AttendLeftEarly:
		return "早退"
	case AttendExpired:
		return "已过期"
	case AttendPublicLeave:
		return "公假"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

type attendInfoResponse struct {
	Data *struct {
		Status int `json:"status"`
	} `json:"data"`
}

// QueryAttendState asks the server for the current attendance record.
func QueryAttendState(ctx context.Context, sess *session.Session, activeID int64) (AttendState, error) {
	rawURL := fmt.Sprintf("%s?activeId=%d&type=1", sess.Proto().Get(protocol.GetAttendInfo), activeID)

	body, err := sess.Agent().GetString(ctx, rawURL)
	if err != nil {
		return AttendUnsigned, err
	}

	var resp attendInfoResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return AttendUnsigned, fmt.Errorf("%w: attend info: %v", common.ErrParse, err)
	}
	if resp.Data == nil {
		return AttendUnsigned, fmt.Errorf("%w: attend info has no data", common.ErrParse)
	}

	return AttendState(resp.Data.Status), nil
}
