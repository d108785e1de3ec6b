package activity

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cxsign/cxsign/pkg/agent"
	"github.com/cxsign/cxsign/pkg/course"
	"github.com/cxsign/cxsign/pkg/protocol"
	"github.com/cxsign/cxsign/pkg/session"
)

func testSession(t *testing.T, set func(*protocol.Registry, string), srvURL string) *session.Session {
	t.Helper()

	proto := protocol.NewDefault()
	set(proto, srvURL)

	ag, err := agent.New("test-ua")
	if err != nil {
		t.Fatal(err)
	}

	return session.FromAgent(proto, ag, "100", "1", "学生")
}

func TestListSplitsSignsAndOthers(t *testing.T) {
	t.Parallel()

	now := time.Now().UnixMilli()
	payload := fmt.Sprintf(`{"data":{"activeList":[
		{"id":1,"nameOne":"签到","otherId":"2","status":1,"startTime":%d},
		{"id":2,"nameOne":"随堂练习","status":1,"startTime":%d},
		{"id":3,"nameOne":"投票","otherId":"42","status":1,"startTime":%d},
		{"id":4,"nameOne":"签到","otherId":0,"status":1,"startTime":%d}
	]}}`, now, now, now, now)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	sess := testSession(t, func(p *protocol.Registry, u string) {
		p.Set(protocol.ActiveList, u)
	}, srv.URL)

	acts, err := List(context.Background(), sess, course.Course{ID: 101, ClassID: 7001})
	if err != nil {
		t.Fatal(err)
	}

	if len(acts.Signs) != 2 {
		t.Fatalf("Actual sign count (%v) is different from expected (2)", len(acts.Signs))
	}
	if len(acts.Others) != 2 {
		t.Fatalf("Actual other count (%v) is different from expected (2)", len(acts.Others))
	}

	if acts.Signs[0].OtherID != "2" || acts.Signs[1].OtherID != "0" {
		t.Errorf("Unexpected discriminants: %v, %v", acts.Signs[0].OtherID, acts.Signs[1].OtherID)
	}
}

func TestRawSignIsValid(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_733_128_874, 0)

	testCases := []struct {
		status  int
		started time.Duration // how long before now
		valid   bool
	}{
		{1, time.Minute, true},
		{1, 2*time.Hour - time.Second, true},
		{1, 2 * time.Hour, false},
		{0, time.Minute, false},
		{2, time.Minute, false},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("valid_%v", i), func(t *testing.T) {
			r := RawSign{
				Status:      tc.status,
				StartTimeMs: now.Add(-tc.started).UnixMilli(),
			}
			if got := r.IsValid(now); got != tc.valid {
				t.Errorf("Actual validity (%v) is different from expected (%v)", got, tc.valid)
			}
		})
	}
}

func TestFetchDetail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("activePrimaryId") != "55" {
			t.Errorf("unexpected query: %v", r.URL)
		}
		w.Write([]byte(`{"ifPhoto":1,"ifRefreshEwm":0,"signCode":"1234"}`))
	}))
	defer srv.Close()

	sess := testSession(t, func(p *protocol.Registry, u string) {
		p.Set(protocol.SignDetail, u)
	}, srv.URL)

	d, err := FetchDetail(context.Background(), sess, 55)
	if err != nil {
		t.Fatal(err)
	}

	if !d.IsPhoto || d.IsRefreshQr {
		t.Errorf("Unexpected detail flags: %+v", d)
	}
	if d.SignCode == nil || *d.SignCode != "1234" {
		t.Errorf("Actual sign code (%v) is different from expected (1234)", d.SignCode)
	}
}

func TestDetailCacheFetchesOnce(t *testing.T) {
	t.Parallel()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"ifPhoto":0,"ifRefreshEwm":1}`))
	}))
	defer srv.Close()

	sess := testSession(t, func(p *protocol.Registry, u string) {
		p.Set(protocol.SignDetail, u)
	}, srv.URL)

	dc, err := NewDetailCache()
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		d, err := dc.Get(context.Background(), sess, 77)
		if err != nil {
			t.Fatal(err)
		}
		if !d.IsRefreshQr {
			t.Error("Expected refresh-qr detail")
		}
	}

	if hits != 1 {
		t.Errorf("Actual fetch count (%v) is different from expected (1)", hits)
	}
}

func TestQueryAttendState(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"status":9}}`))
	}))
	defer srv.Close()

	sess := testSession(t, func(p *protocol.Registry, u string) {
		p.Set(protocol.GetAttendInfo, u)
	}, srv.URL)

	state, err := QueryAttendState(context.Background(), sess, 1)
	if err != nil {
		t.Fatal(err)
	}

	if state != AttendLate {
		t.Errorf("Actual state (%v) is different from expected (%v)", state, AttendLate)
	}
	if state.String() != "迟到" {
		t.Errorf("Actual state name (%v) is different from expected (迟到)", state.String())
	}
}

func TestPresetLocations(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"activeid":11,"address":"门口","longitude":116.30,"latitude":40.00,"locationrange":"500"}
		]}`))
	}))
	defer srv.Close()

	sess := testSession(t, func(p *protocol.Registry, u string) {
		p.Set(protocol.GetLocationLog, u)
	}, srv.URL)

	presets, err := PresetLocations(context.Background(), sess, course.Course{ID: 101, ClassID: 7001})
	if err != nil {
		t.Fatal(err)
	}

	preset, ok := presets[11]
	if !ok {
		t.Fatal("Expected a preset for active id 11")
	}
	if preset.Range != 500 || preset.Address != "门口" {
		t.Errorf("Unexpected preset: %+v", preset)
	}
}
