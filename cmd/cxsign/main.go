package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cxsign/cxsign/pkg/common"
	"github.com/cxsign/cxsign/pkg/location"
	"github.com/cxsign/cxsign/pkg/monitoring"
	"github.com/cxsign/cxsign/pkg/pan"
	"github.com/cxsign/cxsign/pkg/protocol"
	"github.com/cxsign/cxsign/pkg/session"
	"github.com/cxsign/cxsign/pkg/sign"
	"github.com/cxsign/cxsign/pkg/store"
)

const (
	envUname    = "CXSIGN_UNAME"
	envPassword = "CXSIGN_PASSWORD"
)

var (
	GitCommit string

	envFileFlag    = flag.String("env", "", "Path to .env file, 'stdin' or empty")
	verboseFlag    = flag.Bool("verbose", false, "Enable trace logging")
	versionFlag    = flag.Bool("version", false, "Print version and exit")
	addAccountFlag = flag.Bool("add-account", false, fmt.Sprintf("Save the account from %s/%s and exit", envUname, envPassword))
	courseFlag     = flag.Int64("course", 0, "Limit signing to one course id (0 scans all)")
	refreshFlag    = flag.Bool("refresh-excludes", false, "Rescan every course and rewrite the exclusion cache")
	locationFlag   = flag.String("location", "", "Explicit location as addr,lon,lat,alt or a stored alias")
	photoFlag      = flag.String("photo", "", "Path to a photo to upload for photo signs")
	signcodeFlag   = flag.String("signcode", "", "Code for gesture and signcode signs")
	encFlag        = flag.String("enc", "", "enc parameter scanned from a QR code")
	metricsFlag    = flag.String("metrics", "", "Expose prometheus metrics on this address (e.g. localhost:9090)")

	env *common.EnvMap
)

func version() string {
	if len(GitCommit) > 0 {
		return GitCommit
	}
	return "dev"
}

func addAccount(ctx context.Context, st *store.Store) error {
	uname := env.Get(envUname)
	password := env.Get(envPassword)
	if len(uname) == 0 || len(password) == 0 {
		return errors.New("account credentials are not set")
	}

	solver := session.SolverWrapper{Kind: session.DefaultSolverKind}
	encPwd, err := solver.EncryptPassword(password)
	if err != nil {
		return err
	}

	sess, err := session.Login(ctx, protocolRegistry, session.DefaultSolverKind, uname, encPwd)
	if err != nil {
		return err
	}

	return st.UpsertAccount(store.Account{
		UID:       sess.UID(),
		Uname:     uname,
		EncPwd:    encPwd,
		LoginType: session.DefaultSolverKind,
	})
}

func loadSessions(ctx context.Context, st *store.Store, metrics common.Metrics) ([]*session.Session, error) {
	accounts, err := st.Accounts()
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, errors.New("no saved accounts, run with -add-account first")
	}

	var sessions []*session.Session
	for _, a := range accounts {
		sess, err := session.Load(ctx, protocolRegistry, a.LoginType, a.UID, a.Uname, a.EncPwd)
		if err != nil {
			metrics.ObserveLogin("fail")
			slog.WarnContext(ctx, "Skipping account", "uid", a.UID, common.ErrAttr(err))
			continue
		}
		metrics.ObserveLogin("ok")
		sessions = append(sessions, sess)
	}

	if len(sessions) == 0 {
		return nil, errors.New("no account could be logged in")
	}

	return sessions, nil
}

func resolveLocation(st *store.Store, value string) (*location.Location, error) {
	if len(value) == 0 {
		return nil, nil
	}

	if loc, err := location.Parse(value); err == nil {
		return &loc, nil
	}

	stored, err := st.LocationByAlias(value)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve location %q: %w", value, err)
	}

	return &stored.Loc, nil
}

// resolveEnc accepts either a bare enc value or a whole scanned QR URL,
// recognised by the registry's QR prefix.
func resolveEnc(value string) string {
	if len(value) == 0 {
		return value
	}

	if strings.HasPrefix(value, protocolRegistry.Get(protocol.QrcodePat)) {
		if u, err := url.Parse(value); err == nil {
			if enc := u.Query().Get("enc"); len(enc) > 0 {
				return enc
			}
		}
	}

	return value
}

func signData(st *store.Store) (*sign.Data, error) {
	loc, err := resolveLocation(st, *locationFlag)
	if err != nil {
		return nil, err
	}

	return &sign.Data{
		Location: loc,
		Code:     *signcodeFlag,
		Enc:      resolveEnc(*encFlag),
	}, nil
}

// uploadPhoto pushes the supplied file into the first account's cloud
// drive so photo signs can reference it.
func uploadPhoto(ctx context.Context, sess *session.Session, data *sign.Data) error {
	f, err := os.Open(*photoFlag)
	if err != nil {
		return err
	}
	defer f.Close()

	objectID, err := pan.Upload(ctx, sess, filepath.Base(*photoFlag), f)
	if err != nil {
		return err
	}
	data.PhotoID = objectID

	slog.InfoContext(ctx, "Uploaded photo", "objectID", objectID)
	return nil
}

func serveMetrics(ctx context.Context, svc *monitoring.Service) {
	mux := http.NewServeMux()
	svc.Setup(mux)

	server := &http.Server{Addr: *metricsFlag, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "Metrics server failed", common.ErrAttr(err))
		}
	}()
}

var protocolRegistry *protocol.Registry

func run(ctx context.Context) error {
	configDir, err := common.ConfigDir()
	if err != nil {
		return err
	}

	protocolRegistry = protocol.Load(ctx, configDir)
	if err := session.InstallDefaultSolver(protocolRegistry); err != nil {
		return err
	}

	st, err := store.Open(configDir)
	if err != nil {
		return err
	}
	defer st.Close()

	if *addAccountFlag {
		return addAccount(ctx, st)
	}

	engine := sign.NewEngine(protocolRegistry)
	metrics := common.NullMetrics
	if len(*metricsFlag) > 0 {
		svc := monitoring.NewService()
		engine.Metrics = svc
		metrics = svc
		serveMetrics(ctx, svc)
	}

	excludes, err := st.Excludes()
	if err != nil {
		return err
	}

	scanner, err := sign.NewScanner(engine, excludes)
	if err != nil {
		return err
	}

	sessions, err := loadSessions(ctx, st, metrics)
	if err != nil {
		return err
	}

	data, err := signData(st)
	if err != nil {
		return err
	}
	if len(*photoFlag) > 0 {
		if err := uploadPhoto(ctx, sessions[0], data); err != nil {
			return err
		}
	}

	// the first session drives discovery; all sessions sign
	signs, err := scanner.Scan(ctx, sessions[0], *refreshFlag)
	if err != nil {
		return err
	}

	now := time.Now()
	attempted := 0
	for i := range signs {
		sg := &signs[i]
		if *courseFlag != 0 && sg.Raw.Course.ID != *courseFlag {
			continue
		}
		if !sg.Raw.IsValid(now) || sg.Kind == sign.KindUnknown {
			continue
		}

		attempted++
		slog.InfoContext(ctx, "Signing activity", "activity", sg.Raw.Name,
			"course", sg.Raw.Course.Name, "variant", sg.Kind.String())

		outcomes := engine.SignAll(ctx, sg, sessions, data)
		for uid, outcome := range outcomes {
			slog.InfoContext(common.UIDContext(ctx, uid), "Sign finished",
				"activity", sg.Raw.Name, "outcome", outcome.String())
		}
	}

	if attempted == 0 {
		slog.InfoContext(ctx, "No open sign activities found")
	}

	return nil
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Fprintln(os.Stdout, version())
		os.Exit(0)
	}

	common.SetupLogs(*verboseFlag)

	var err error
	env, err = common.NewEnvMap(*envFileFlag)
	if err != nil {
		slog.Error("Cannot read environment", common.ErrAttr(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, _ = common.TraceContext(ctx)

	slog.InfoContext(ctx, "Starting up", "version", version(),
		"args", strings.Join(os.Args[1:], " "))

	if err := run(ctx); err != nil {
		slog.ErrorContext(ctx, "Exiting with error", common.ErrAttr(err))
		os.Exit(1)
	}
}
