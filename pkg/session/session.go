// Package session pairs an HTTP agent with the identity it is logged in
// as, and knows how to establish, persist and refresh that identity.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cxsign/cxsign/pkg/agent"
	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/protocol"
)

// Session owns its agent and cookie jar; two sessions never share
// mutable cookie state. Identity is the (uid, fid, student name) triple
// derived after login.
type Session struct {
	uid   string
	fid   string
	name  string
	uname string
	// DES-encoded password, kept for re-login on expiry
	encPwd    string
	loginKind string

	agent *agent.Agent
	proto *protocol.Registry
}

func (s *Session) UID() string               { return s.uid }
func (s *Session) Fid() string               { return s.fid }
func (s *Session) StudentName() string       { return s.name }
func (s *Session) Uname() string             { return s.uname }
func (s *Session) Agent() *agent.Agent       { return s.agent }
func (s *Session) Proto() *protocol.Registry { return s.proto }

// Equal compares sessions by uid, matching how the fan-out keys its
// outcome map.
func (s *Session) Equal(other *Session) bool {
	return other != nil && s.uid == other.uid
}

// FromAgent wraps an already-authenticated agent. Callers that obtained
// cookies elsewhere (another device, a solver of their own) use this to
// enter the engine without the password flow.
func FromAgent(proto *protocol.Registry, ag *agent.Agent, uid, fid, name string) *Session {
	return &Session{
		uid:   uid,
		fid:   fid,
		name:  name,
		agent: ag,
		proto: proto,
	}
}

func scrapeStudentName(ctx context.Context, ag *agent.Agent, proto *protocol.Registry) (string, error) {
	body, err := ag.GetString(ctx, proto.Get(protocol.AccountManage))
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: account page: %v", common.ErrParse, err)
	}

	name := strings.TrimSpace(doc.Find(".colorBlue").First().Text())
	if len(name) == 0 {
		return "", common.ErrLoginExpired
	}

	return name, nil
}

func (s *Session) deriveIdentity(ctx context.Context) error {
	loginURL, err := url.Parse(s.proto.Get(protocol.LoginEnc))
	if err != nil {
		return err
	}

	uid, ok := s.agent.CookieValue(loginURL, "_uid")
	if !ok {
		uid, ok = s.agent.CookieValue(loginURL, "UID")
	}
	if !ok {
		return fmt.Errorf("%w: no uid cookie after login", common.ErrParse)
	}
	s.uid = uid

	if fid, ok := s.agent.CookieValue(loginURL, "fid"); ok {
		s.fid = fid
	}

	name, err := scrapeStudentName(ctx, s.agent, s.proto)
	if err != nil {
		return err
	}
	s.name = name

	return nil
}

// Login establishes a fresh session for uname using the solver
// registered under loginKind, and persists the cookie jar.
func Login(ctx context.Context, proto *protocol.Registry, loginKind, uname, encPwd string) (*Session, error) {
	solver := SolverWrapper{Kind: loginKind}

	ag, err := solver.Login(ctx, uname, encPwd)
	if err != nil {
		return nil, err
	}

	s := &Session{
		uname:     uname,
		encPwd:    encPwd,
		loginKind: loginKind,
		agent:     ag,
		proto:     proto,
	}

	if err := s.deriveIdentity(ctx); err != nil {
		return nil, err
	}

	ctx = common.UIDContext(ctx, s.uid)
	slog.InfoContext(ctx, "Logged in", "student", s.name, "fid", s.fid)

	if err := s.SaveCookies(); err != nil {
		slog.WarnContext(ctx, "Cannot persist session cookies", common.ErrAttr(err))
	}

	return s, nil
}

// Load restores a session for uid from its persisted cookie jar,
// re-logging in when the jar has expired.
func Load(ctx context.Context, proto *protocol.Registry, loginKind, uid, uname, encPwd string) (*Session, error) {
	ag, err := agent.New(proto.Get(protocol.UserAgent))
	if err != nil {
		return nil, err
	}

	s := &Session{
		uid:       uid,
		uname:     uname,
		encPwd:    encPwd,
		loginKind: loginKind,
		agent:     ag,
		proto:     proto,
	}

	path, err := s.cookiePath()
	if err != nil {
		return nil, err
	}

	if err := ag.LoadCookies(path); err != nil {
		slog.DebugContext(ctx, "No persisted cookies, logging in", "uid", uid, common.ErrAttr(err))
		return s, s.Relogin(ctx)
	}

	name, err := scrapeStudentName(ctx, ag, proto)
	if err != nil {
		slog.InfoContext(ctx, "Persisted session expired, logging in again", "uid", uid)
		return s, s.Relogin(ctx)
	}
	s.name = name

	return s, nil
}

// Relogin re-authenticates from the stored credentials, replacing the
// agent and refreshing the persisted jar.
func (s *Session) Relogin(ctx context.Context) error {
	if len(s.uname) == 0 || len(s.encPwd) == 0 {
		return common.ErrLoginExpired
	}

	solver := SolverWrapper{Kind: s.loginKind}
	ag, err := solver.Login(ctx, s.uname, s.encPwd)
	if err != nil {
		return err
	}
	s.agent = ag

	if err := s.deriveIdentity(ctx); err != nil {
		return err
	}

	if err := s.SaveCookies(); err != nil {
		slog.WarnContext(ctx, "Cannot persist session cookies", common.ErrAttr(err))
	}

	return nil
}

func (s *Session) cookiePath() (string, error) {
	dir, err := common.ConfigDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, s.uid+".json"), nil
}

// SaveCookies serialises the jar for every protocol host.
func (s *Session) SaveCookies() error {
	path, err := s.cookiePath()
	if err != nil {
		return err
	}

	hosts := []string{
		s.proto.Get(protocol.LoginEnc),
		s.proto.Get(protocol.AccountManage),
		s.proto.Get(protocol.ActiveList),
		s.proto.Get(protocol.BackClazzData),
		s.proto.Get(protocol.GetCaptcha),
		s.proto.Get(protocol.PanChaoxing),
	}

	return s.agent.SaveCookies(path, hosts)
}
