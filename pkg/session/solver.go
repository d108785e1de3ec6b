package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/cxsign/cxsign/pkg/agent"
	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/protocol"
)

// DefaultSolverKind is always registered; accounts persisted without an
// explicit login type resolve to it.
const DefaultSolverKind = "default"

// LoginSolver abstracts one way of establishing an authenticated agent.
// Alternative kinds (SSO portals of individual schools) register under
// their own names.
type LoginSolver interface {
	IsLoggedIn(ctx context.Context, ag *agent.Agent) bool
	Login(ctx context.Context, uname, encPwd string) (*agent.Agent, error)
	EncryptPassword(plain string) (string, error)
}

var (
	solverMux sync.RWMutex
	solvers   = make(map[string]LoginSolver)
)

// RegisterSolver installs a login solver under kind. The default slot may
// only be installed once per process.
func RegisterSolver(kind string, s LoginSolver) error {
	solverMux.Lock()
	defer solverMux.Unlock()

	if _, ok := solvers[kind]; ok && kind == DefaultSolverKind {
		return fmt.Errorf("session: default login solver already registered")
	}
	solvers[kind] = s

	return nil
}

func lookupSolver(kind string) (LoginSolver, bool) {
	solverMux.RLock()
	defer solverMux.RUnlock()

	s, ok := solvers[kind]
	return s, ok
}

// SolverWrapper defers registry lookup to each call, so a solver
// registered after the wrapper was created is still found.
type SolverWrapper struct {
	Kind string
}

func (w SolverWrapper) resolve() (LoginSolver, error) {
	if s, ok := lookupSolver(w.Kind); ok {
		return s, nil
	}
	if s, ok := lookupSolver(DefaultSolverKind); ok {
		return s, nil
	}

	return nil, fmt.Errorf("session: no login solver for kind %q", w.Kind)
}

func (w SolverWrapper) IsLoggedIn(ctx context.Context, ag *agent.Agent) bool {
	s, err := w.resolve()
	if err != nil {
		return false
	}

	return s.IsLoggedIn(ctx, ag)
}

func (w SolverWrapper) Login(ctx context.Context, uname, encPwd string) (*agent.Agent, error) {
	s, err := w.resolve()
	if err != nil {
		return nil, err
	}

	return s.Login(ctx, uname, encPwd)
}

func (w SolverWrapper) EncryptPassword(plain string) (string, error) {
	s, err := w.resolve()
	if err != nil {
		return "", err
	}

	return s.EncryptPassword(plain)
}

// defaultSolver drives the password login endpoint.
type defaultSolver struct {
	proto *protocol.Registry
}

// InstallDefaultSolver binds the always-present default login solver to
// the given endpoint registry.
func InstallDefaultSolver(proto *protocol.Registry) error {
	return RegisterSolver(DefaultSolverKind, &defaultSolver{proto: proto})
}

type loginResponse struct {
	Status bool    `json:"status"`
	URL    *string `json:"url"`
	Msg1   *string `json:"msg1"`
	Msg2   *string `json:"msg2"`
}

func (s *defaultSolver) Login(ctx context.Context, uname, encPwd string) (*agent.Agent, error) {
	ag, err := agent.New(s.proto.Get(protocol.UserAgent))
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("uname", uname)
	form.Set("password", encPwd)
	form.Set("fid", "-1")
	form.Set("t", "true")
	form.Set("refer", "https://i.chaoxing.com")
	form.Set("forbidotherlogin", "0")
	form.Set("validate", "")

	resp, err := ag.PostForm(ctx, s.proto.Get(protocol.LoginEnc), form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, fmt.Errorf("%w: login response: %v", common.ErrParse, err)
	}

	if !lr.Status {
		var msg strings.Builder
		for _, m := range []*string{lr.URL, lr.Msg1, lr.Msg2} {
			if m != nil {
				msg.WriteString(*m)
			}
		}
		return nil, fmt.Errorf("%w: %s", common.ErrLoginFailed, (&common.ServerError{Msg: msg.String()}).Error())
	}

	return ag, nil
}

func (s *defaultSolver) IsLoggedIn(ctx context.Context, ag *agent.Agent) bool {
	name, err := scrapeStudentName(ctx, ag, s.proto)
	return err == nil && len(name) > 0
}

func (s *defaultSolver) EncryptPassword(plain string) (string, error) {
	return EncryptPassword(plain)
}
