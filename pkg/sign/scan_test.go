package sign

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cxsign/cxsign/pkg/protocol"
)

type memExcludes struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

func newMemExcludes(ids ...int64) *memExcludes {
	m := &memExcludes{ids: make(map[int64]struct{})}
	for _, id := range ids {
		m.ids[id] = struct{}{}
	}
	return m
}

func (m *memExcludes) IsExcluded(courseID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.ids[courseID]
	return ok
}

func (m *memExcludes) Replace(courseIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ids = make(map[int64]struct{}, len(courseIDs))
	for _, id := range courseIDs {
		m.ids[id] = struct{}{}
	}
	return nil
}

func scanTestServer(t *testing.T, now time.Time) *httptest.Server {
	t.Helper()

	freshStart := now.Add(-10 * 24 * time.Hour).UnixMilli()
	staleStart := now.Add(-200 * 24 * time.Hour).UnixMilli()

	mux := http.NewServeMux()
	mux.HandleFunc("/clazzdata", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"channelList":[
			{"key":201,"content":{"course":{"data":[{"id":101,"name":"现代史"}]}}},
			{"key":202,"content":{"course":{"data":[{"id":102,"name":"微积分"}]}}}
		]}`)
	})
	mux.HandleFunc("/activelist", func(w http.ResponseWriter, r *http.Request) {
		start := freshStart
		if r.URL.Query().Get("courseId") == "102" {
			start = staleStart
		}
		fmt.Fprintf(w, `{"data":{"activeList":[{"id":%s1,"nameOne":"签到","otherId":"0","status":1,"startTime":%d}]}}`,
			r.URL.Query().Get("courseId"), start)
	})
	mux.HandleFunc("/detail", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"ifPhoto":0,"ifRefreshEwm":0}`)
	})

	return httptest.NewServer(mux)
}

func scannerForServer(t *testing.T, srv *httptest.Server, now time.Time, excludes ExcludeCache) (*Scanner, *Engine) {
	t.Helper()

	proto := testProto(srv)
	proto.Set(protocol.BackClazzData, srv.URL+"/clazzdata")
	proto.Set(protocol.ActiveList, srv.URL+"/activelist")
	proto.Set(protocol.SignDetail, srv.URL+"/detail")

	e := testEngine(proto)
	e.Now = func() time.Time { return now }

	sc, err := NewScanner(e, excludes)
	if err != nil {
		t.Fatalf("Cannot create scanner: %v", err)
	}
	return sc, e
}

func TestScanRefreshPrunesStaleCourses(t *testing.T) {
	now := time.Now()
	srv := scanTestServer(t, now)
	defer srv.Close()

	excludes := newMemExcludes()
	sc, e := scannerForServer(t, srv, now, excludes)

	signs, err := sc.Scan(context.Background(), testSession(t, e.Proto, "1001"), true)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(signs) != 1 || signs[0].Raw.Course.ID != 101 {
		t.Fatalf("Actual inventory (%v) is different from expected (course 101 only)", signs)
	}
	if !excludes.IsExcluded(102) {
		t.Error("Stale course 102 is missing from the exclusion cache")
	}
	if excludes.IsExcluded(101) {
		t.Error("Fresh course 101 was excluded")
	}
}

func TestScanSkipsExcludedCoursesWithoutRefresh(t *testing.T) {
	now := time.Now()
	srv := scanTestServer(t, now)
	defer srv.Close()

	excludes := newMemExcludes(102)
	sc, e := scannerForServer(t, srv, now, excludes)

	signs, err := sc.Scan(context.Background(), testSession(t, e.Proto, "1001"), false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(signs) != 1 || signs[0].Raw.Course.ID != 101 {
		t.Fatalf("Actual inventory (%v) is different from expected (course 101 only)", signs)
	}
	// no refresh scan, cache untouched
	if !excludes.IsExcluded(102) {
		t.Error("Exclusion cache was rewritten without a refresh scan")
	}
}
