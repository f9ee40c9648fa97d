package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tracegate/internal/enforce"
	"github.com/ppiankov/tracegate/internal/fileguard"
)

var readRecords bool

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().BoolVar(&readRecords, "records", false, "Parse .csv/.json as records so PII fields are masked by key")
}

var readCmd = &cobra.Command{
	Use:   "read <path>...",
	Short: "Read files through policy enforcement",
	Long: "Reads each file in one trace, so later reads are judged with what earlier\n" +
		"reads revealed. Stops at the first blocked file with exit code 77.",
	Args: cobra.MinimumNArgs(1),
	RunE: runRead,
}

func runRead(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime("tracegate read")
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()
	return fileguard.With(rt.sess, func(g *fileguard.Guard) error {
		for _, path := range args {
			if err := readOne(ctx, cmd, g, path); err != nil {
				if ee, ok := enforce.AsEnforcementError(err); ok {
					reportBlocked(cmd, path, ee)
					return &ExitError{Code: ExitBlocked}
				}
				return err
			}
		}
		return nil
	})
}

func readOne(ctx context.Context, cmd *cobra.Command, g *fileguard.Guard, path string) error {
	if readRecords {
		records, err := g.ReadRecords(ctx, path)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), records)
	}

	text, err := g.ReadText(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), text)
	return nil
}
