// Command efile is the command line client of the e-filing portal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"efiling.org/internal/config"
	"efiling.org/internal/fault"
	"efiling.org/internal/filing"
	"efiling.org/internal/obs"
	"efiling.org/internal/portal"
	"efiling.org/internal/session"
)

// app holds what every command needs once flags and config are resolved.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	client   *portal.Client
	tokens   session.TokenStore
	session  *session.Manager
	workflow *filing.Workflow
	out      io.Writer
	closers  []func() error
}

type globalFlags struct {
	configPath string
	envFile    string
	apiURL     string
	stateDir   string
	tokenStore string
	timeout    time.Duration
	verbose    bool
}

// newRootCmd builds the command tree. The returned app must be closed once the
// command has run, whether or not it failed.
func newRootCmd(out io.Writer) (*cobra.Command, *app) {
	var (
		flags globalFlags
		a     = &app{out: out}
	)
	root := &cobra.Command{
		Use:           "efile",
		Short:         "File tax returns with the e-filing portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context(), flags)
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "efile.yaml", "Path to YAML config")
	pf.StringVar(&flags.envFile, "env-file", ".env", "Path to .env file")
	pf.StringVar(&flags.apiURL, "api", "", "Portal API base URL (overrides config)")
	pf.StringVar(&flags.stateDir, "state-dir", "", "Directory holding the session token")
	pf.StringVar(&flags.tokenStore, "token-store", "", "Token store: file, redis or memory")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Per-request timeout (overrides config)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newLoginCmd(a),
		newEnrollCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newTemplatesCmd(a),
		newSubmitCmd(a),
		newSubmissionsCmd(a),
		newReviewCmd(a),
		newUsersCmd(a),
		newDashboardCmd(a),
		newProfileCmd(a),
		newPasswordCmd(a),
	)
	return root, a
}

func (a *app) setup(ctx context.Context, f globalFlags) error {
	cfg, err := config.Load(f.configPath, f.envFile)
	if err != nil {
		return err
	}
	if f.apiURL != "" {
		cfg.Client.APIBaseURL = f.apiURL
	}
	if f.stateDir != "" {
		cfg.Client.StateDir = f.stateDir
	}
	if f.tokenStore != "" {
		cfg.Client.TokenStore = f.tokenStore
	}
	if f.timeout > 0 {
		cfg.Client.Timeout = f.timeout.String()
	}
	if f.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.ValidateClient(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = zap.NewNop()
	if f.verbose {
		a.logger = obs.NewLogger(cfg.LogLevel)
	}
	obs.SetLogger(a.logger)

	client, err := portal.New(cfg.Client.APIBaseURL,
		portal.WithTimeout(cfg.ClientTimeout()),
		portal.WithRateLimit(cfg.Client.Rate, cfg.Client.Burst),
		portal.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.client = client
	a.closers = append(a.closers, func() error { client.CloseIdleConnections(); return nil })

	switch cfg.Client.TokenStore {
	case config.TokenStoreRedis:
		rs, err := session.OpenRedisStore(cfg.Client.RedisURL, cfg.Client.RedisSlot)
		if err != nil {
			return err
		}
		a.tokens = rs
		a.closers = append(a.closers, rs.Close)
	case config.TokenStoreMemory:
		a.tokens = session.NewMemoryStore()
	default:
		a.tokens = session.NewFileStore(cfg.Client.StateDir)
	}

	a.session = session.NewManager(client, a.tokens,
		session.WithHeaders(client),
		session.WithLogger(a.logger))
	a.workflow = filing.NewWorkflow(client, client, filing.WithLogger(a.logger))
	a.session.Restore(ctx)
	return nil
}

func (a *app) close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func main() {
	root, a := newRootCmd(os.Stdout)
	err := root.ExecuteContext(context.Background())
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "efile: %s\n", describe(err))
		os.Exit(exitCode(err))
	}
}

// describe appends the failure kind to typed errors.
func describe(err error) string {
	switch label := fault.Label(err); label {
	case "unknown", "transport":
		return err.Error()
	default:
		return fmt.Sprintf("%s [%s]", err.Error(), label)
	}
}

func exitCode(err error) int {
	switch fault.KindOf(err) {
	case fault.ErrValidation:
		return 2
	case fault.ErrAuthentication, fault.ErrUnauthenticated:
		return 3
	case fault.ErrAuthorization:
		return 4
	}
	return 1
}
