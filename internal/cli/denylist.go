package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tracegate/internal/denylist"
)

var denylistForce bool

func init() {
	rootCmd.AddCommand(denylistCmd)
	denylistCmd.AddCommand(denylistShowCmd, denylistAddCmd, denylistInitCmd, denylistValidateCmd)
	denylistInitCmd.Flags().BoolVar(&denylistForce, "force", false, "Overwrite an existing denylist")
}

var denylistCmd = &cobra.Command{
	Use:   "denylist",
	Short: "Manage the denylist of URLs, files and commands",
}

var denylistShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective denylist patterns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dl := denylist.Load(flagDenylist, logger)
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(dl.Patterns())
	},
}

var denylistAddCmd = &cobra.Command{
	Use:   "add <urls|files|commands> <pattern>",
	Short: "Append a pattern to the denylist file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dl := denylist.Load(flagDenylist, logger)
		if err := dl.AddPattern(args[0], args[1]); err != nil {
			return err
		}
		path, err := denylist.Save(flagDenylist, dl)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s pattern %q to %s\n", args[0], args[1], path)
		return nil
	},
}

var denylistInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default denylist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := flagDenylist
		if path == "" {
			path = denylist.DefaultPath()
		}
		if err := refuseOverwrite(path, denylistForce); err != nil {
			return err
		}
		written, err := denylist.WriteDefault(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", written)
		return nil
	},
}

var denylistValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Parse a denylist file strictly",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := flagDenylist
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			path = denylist.DefaultPath()
		}
		dl, err := denylist.LoadFile(path)
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}
		p := dl.Patterns()
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d url, %d file, %d command patterns\n",
			len(p.URLs), len(p.Files), len(p.Commands))
		return nil
	},
}

func refuseOverwrite(path string, force bool) error {
	if force || path == "" {
		return nil
	}
	_, err := os.Stat(path)
	if err == nil {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("stat %s: %w", path, err)
}
