package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tracegate/internal/denylist"
	"github.com/ppiankov/tracegate/internal/enforce"
	"github.com/ppiankov/tracegate/internal/fileguard"
	"github.com/ppiankov/tracegate/internal/policy"
	"github.com/ppiankov/tracegate/internal/session"
)

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.AddCommand(socCmd)
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run demonstration scenarios",
}

var socCmd = &cobra.Command{
	Use:   "soc",
	Short: "Run SOC efficiency demo (salary must be blocked)",
	Long: "Reads four files in one trace with purpose SOC_efficiency using the\n" +
		"built-in policy and denylist. Exits 1 if the salary file is not blocked.",
	Args: cobra.NoArgs,
	RunE: runSOCDemo,
}

type demoFile struct {
	name    string
	content string
}

var socFiles = []demoFile{
	{"org_chart.txt", "Engineering: Alice, Bob, Carol\nManagement: Dave, Eve\n"},
	{"siem_incidents.json", `[{"id":1,"type":"phishing","status":"resolved","reporter":"alice@corp.example"}]`},
	{"hr_employees.csv", "name,department,email\nAlice,Engineering,alice@corp.example\nBob,SOC,bob@corp.example\n"},
	{"hr_salary_bands.csv", "name,salary,bonus\nAlice,150000,10000\nBob,120000,8000\n"},
}

func runSOCDemo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== tracegate SOC efficiency demo ===")
	fmt.Fprintln(out)

	dir, err := os.MkdirTemp("", "tracegate-demo-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	for _, f := range socFiles {
		if err := os.WriteFile(filepath.Join(dir, f.name), []byte(f.content), 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}

	engine := policy.NewEngine(policy.DefaultConfig(), denylist.NewDefault(), policy.WithLogger(logger))
	sess := session.New(engine,
		session.WithPurpose("SOC_efficiency"),
		session.WithActor(map[string]any{"user_id": "analyst1", "agent_id": "soc_agent"}),
		session.WithLogger(logger),
	)

	salaryBlocked, err := readSOCFiles(cmd.Context(), out, sess, dir)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Trace summary:")
	if err := writeJSON(out, sess.Snapshot().TraceState); err != nil {
		return err
	}
	fmt.Fprintln(out)

	if !salaryBlocked {
		return &ExitError{Code: 1, Err: fmt.Errorf("salary access was not blocked")}
	}
	fmt.Fprintln(out, "PASS: salary access blocked.")
	return nil
}

func readSOCFiles(ctx context.Context, out io.Writer, sess *session.Session, dir string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	salaryBlocked := false
	err := fileguard.With(sess, func(g *fileguard.Guard) error {
		for _, f := range socFiles {
			path := filepath.Join(dir, f.name)

			var err error
			if filepath.Ext(f.name) == ".txt" {
				_, err = g.ReadText(ctx, path)
			} else {
				_, err = g.ReadRecords(ctx, path)
			}

			status := "read"
			if _, ok := enforce.AsEnforcementError(err); ok {
				status = "BLOCKED"
				if f.name == "hr_salary_bands.csv" {
					salaryBlocked = true
				}
			} else if err != nil {
				return err
			}

			events := sess.Snapshot().Events
			decision := events[len(events)-1].DecisionResult()
			fmt.Fprintf(out, "  %-22s %-8s (%s)\n", f.name, status, decision)
		}
		return nil
	})
	return salaryBlocked, err
}
