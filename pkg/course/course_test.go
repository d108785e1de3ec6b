package course

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cxsign/cxsign/pkg/agent"
	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/protocol"
	"github.com/cxsign/cxsign/pkg/session"
)

func testSession(t *testing.T, srvURL string) *session.Session {
	t.Helper()

	proto := protocol.NewDefault()
	proto.Set(protocol.BackClazzData, srvURL+"/backclazzdata")

	ag, err := agent.New("test-ua")
	if err != nil {
		t.Fatal(err)
	}

	return session.FromAgent(proto, ag, "100", "1", "学生")
}

func TestListParsesAndDeduplicates(t *testing.T) {
	t.Parallel()

	const payload = `{"channelList":[
		{"key":7001,"content":{"course":{"data":[
			{"id":101,"name":"算法设计","teacherfactor":"王老师","imageurl":"https://img/a.png"},
			{"id":101,"name":"算法设计","teacherfactor":"王老师","imageurl":"https://img/a.png"}
		]}}},
		{"key":"7002","content":{"course":{"data":[
			{"id":202,"name":"操作系统","teacherfactor":"李老师","imageurl":""}
		]}}}
	]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("view") != "json" {
			t.Errorf("missing view=json query: %v", r.URL)
		}
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	courses, err := List(context.Background(), testSession(t, srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	if len(courses) != 2 {
		t.Fatalf("Actual course count (%v) is different from expected (2)", len(courses))
	}

	if courses[0].ID != 101 || courses[0].ClassID != 7001 {
		t.Errorf("Unexpected first course: %+v", courses[0])
	}
	if courses[1].Teacher != "李老师" {
		t.Errorf("Actual teacher (%v) is different from expected (李老师)", courses[1].Teacher)
	}
}

func TestListNilChannelListMeansExpired(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"mes":"请登录后再试"}`))
	}))
	defer srv.Close()

	_, err := List(context.Background(), testSession(t, srv.URL))
	if !errors.Is(err, common.ErrLoginExpired) {
		t.Errorf("Actual error (%v) is different from expected (ErrLoginExpired)", err)
	}
}
