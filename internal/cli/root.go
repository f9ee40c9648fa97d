// Package cli implements the tracegate command tree. Decisions are printed to
// stdout as JSON; logs go to stderr.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ppiankov/tracegate/internal/approval"
	"github.com/ppiankov/tracegate/internal/audit"
	"github.com/ppiankov/tracegate/internal/denylist"
	"github.com/ppiankov/tracegate/internal/logging"
	"github.com/ppiankov/tracegate/internal/metrics"
	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/policy"
	"github.com/ppiankov/tracegate/internal/session"
)

// ExitBlocked is the exit code for deny and require_approval.
const ExitBlocked = 77

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitFor returns ExitBlocked for blocking decisions and nil otherwise.
func exitFor(d model.Decision) error {
	if d.Blocking() {
		return &ExitError{Code: ExitBlocked}
	}
	return nil
}

var (
	flagLogLevel    string
	flagLogFormat   string
	flagDenylist    string
	flagPolicy      string
	flagPurpose     string
	flagActor       map[string]string
	flagAuditLog    string
	flagApprovals   string
	flagMetricsFile string

	logger    = logging.Nop()
	collector *metrics.Collector
)

var rootCmd = &cobra.Command{
	Use:   "tracegate",
	Short: "Purpose-bound policy gate for agent data access",
	Long: "Evaluates every data access of an agent against a denylist, purpose-bound rules\n" +
		"and an accumulated trace risk score, then allows, redacts, rewrites, asks for\n" +
		"approval, or denies. Exit code 77 indicates a blocking decision.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.New(logging.Options{
			Level:  flagLogLevel,
			Format: flagLogFormat,
			Writer: cmd.ErrOrStderr(),
		})
		if flagMetricsFile != "" {
			collector = metrics.New()
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagLogLevel, "log-level", "warn", "Log level (trace|debug|info|warn|error)")
	pf.StringVar(&flagLogFormat, "log-format", "json", "Log format (json|console)")
	pf.StringVar(&flagDenylist, "denylist", "", "Path to denylist YAML (default: ~/.tracegate/denylist.yaml)")
	pf.StringVar(&flagPolicy, "policy", "", "Path to policy YAML (default: ~/.tracegate/policy.yaml)")
	pf.StringVar(&flagPurpose, "purpose", "general", "Declared purpose for purpose-bound rules")
	pf.StringToStringVar(&flagActor, "actor", nil, "Caller identity recorded on events (key=value,...)")
	pf.StringVar(&flagAuditLog, "audit-log", "", "Append recorded events to this hash-chained JSONL log")
	pf.StringVar(&flagApprovals, "approvals-dir", "", "Approval store directory (default: ~/.tracegate/approvals)")
	pf.StringVar(&flagMetricsFile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if werr := collector.WriteTextfile(flagMetricsFile); werr != nil {
		fmt.Fprintln(os.Stderr, "Error:", werr)
	}
	if err == nil {
		return 0
	}

	var ee *ExitError
	if errors.As(err, &ee) {
		if ee.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", ee.Err)
		}
		return ee.Code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}

// loadEngine builds the engine from the configured policy and denylist.
// A corrupt policy is an error; a missing or corrupt denylist falls back to
// the defaults.
func loadEngine() (*policy.Engine, string, error) {
	cfg, hash, err := policy.LoadConfigWithHash(flagPolicy)
	if err != nil {
		return nil, "", fmt.Errorf("load policy: %w", err)
	}
	dl := denylist.Load(flagDenylist, logger)
	engine := policy.NewEngine(cfg, dl, policy.WithLogger(logger), policy.WithMetrics(collector))
	return engine, hash, nil
}

func openApprovals() (*approval.Store, error) {
	store, err := approval.NewStore(flagApprovals)
	if err != nil {
		return nil, fmt.Errorf("failed to open approval store: %w", err)
	}
	return store, nil
}

func actor(cli string) map[string]any {
	m := map[string]any{"cli": cli}
	for k, v := range flagActor {
		m[k] = v
	}
	return m
}

// runtime is the session plus the resources that must be closed with it.
type runtime struct {
	sess      *session.Session
	engine    *policy.Engine
	approvals *approval.Store
	log       *audit.Log
}

func (r *runtime) Close() error {
	if r.log == nil {
		return nil
	}
	return r.log.Close()
}

// newRuntime builds a session wired to the approval store and, when
// configured, the audit log.
func newRuntime(cli string, extra ...session.Option) (*runtime, error) {
	engine, hash, err := loadEngine()
	if err != nil {
		return nil, err
	}
	store, err := openApprovals()
	if err != nil {
		return nil, err
	}

	opts := []session.Option{
		session.WithActor(actor(cli)),
		session.WithPurpose(flagPurpose),
		session.WithApprovals(store),
		session.WithLogger(logger),
		session.WithMetrics(collector),
	}

	rt := &runtime{engine: engine, approvals: store}
	if flagAuditLog != "" {
		rt.log, err = audit.Open(flagAuditLog, audit.WithPolicyHash(hash))
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		opts = append(opts, session.WithSink(rt.log))
	}

	rt.sess = session.New(engine, append(opts, extra...)...)
	return rt, nil
}

func componentLogger(name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
