package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tracegate/internal/denylist"
	"github.com/ppiankov/tracegate/internal/policy"
	"github.com/ppiankov/tracegate/internal/policydiff"
)

var (
	policyForce     bool
	diffFormat      string
	diffOldDenylist string
	diffNewDenylist string
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyShowCmd, policyInitCmd, policyValidateCmd, policyDiffCmd)
	policyInitCmd.Flags().BoolVar(&policyForce, "force", false, "Overwrite an existing policy")
	policyDiffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
	policyDiffCmd.Flags().StringVar(&diffOldDenylist, "old-denylist", "", "Also compare denylist patterns: old file")
	policyDiffCmd.Flags().StringVar(&diffNewDenylist, "new-denylist", "", "Also compare denylist patterns: new file")
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage purpose-bound policy rules",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective policy and its hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, hash, err := policy.LoadConfigWithHash(flagPolicy)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# policy_hash: %s\n", hash)
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
	},
}

var policyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default policy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := flagPolicy
		if path == "" {
			path = policy.DefaultPath()
		}
		if path == "" {
			return fmt.Errorf("cannot determine home directory")
		}
		if err := refuseOverwrite(path, policyForce); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create policy directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(policy.DefaultConfigYAML()), 0o644); err != nil {
			return fmt.Errorf("write policy: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Parse and validate a policy file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := flagPolicy
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			path = policy.DefaultPath()
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return &ExitError{Code: 1, Err: fmt.Errorf("read policy: %w", err)}
		}
		cfg, err := policy.ParseConfig(data)
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d rules\n", len(cfg.Rules))
		return nil
	},
}

var policyDiffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Compare two policy files",
	Long: "Reports added, removed, changed and reordered rules, classifying\n" +
		"decision changes as stricter or looser. Exit code 1 when they differ.",
	Args: cobra.ExactArgs(2),
	RunE: runPolicyDiff,
}

func runPolicyDiff(cmd *cobra.Command, args []string) error {
	oldCfg, err := policy.LoadConfig(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	newCfg, err := policy.LoadConfig(args[1])
	if err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}

	result := policydiff.Diff(oldCfg, newCfg)
	result.OldPath, result.NewPath = args[0], args[1]

	if diffOldDenylist != "" || diffNewDenylist != "" {
		oldDL, err := loadDenylistStrict(diffOldDenylist)
		if err != nil {
			return err
		}
		newDL, err := loadDenylistStrict(diffNewDenylist)
		if err != nil {
			return err
		}
		policydiff.DiffDenylist(result, oldDL.Patterns(), newDL.Patterns())
	}

	if diffFormat == "json" {
		out, err := policydiff.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	} else {
		fmt.Fprint(cmd.OutOrStdout(), policydiff.FormatText(result))
	}

	if result.HasChanges {
		return &ExitError{Code: 1}
	}
	return nil
}

// loadDenylistStrict reads path, or returns the defaults when path is empty.
func loadDenylistStrict(path string) (*denylist.Denylist, error) {
	if path == "" {
		return denylist.NewDefault(), nil
	}
	return denylist.LoadFile(path)
}
