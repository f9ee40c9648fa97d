package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tracegate/internal/audit"
	"github.com/ppiankov/tracegate/internal/replay"
	"github.com/ppiankov/tracegate/internal/tracer"
)

var (
	replayTraceID string
	replayFormat  string
	replayStrict  bool
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayTraceID, "trace-id", "", "Only replay this trace")
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
	replayCmd.Flags().BoolVar(&replayStrict, "strict", false, "Exit 1 when any decision changed")
}

var replayCmd = &cobra.Command{
	Use:   "replay <audit-log|snapshot.json>",
	Short: "Re-evaluate recorded events against the current policy",
	Long: "Replays the events of an audit log or a trace snapshot through the\n" +
		"configured policy and denylist and reports every decision that changed.",
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	events, err := loadEvents(args[0], replayTraceID)
	if err != nil {
		return err
	}
	engine, _, err := loadEngine()
	if err != nil {
		return err
	}

	result := replay.Run(events, engine)

	switch replayFormat {
	case "json":
		out, err := replay.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), replay.FormatText(result))
	}

	if replayStrict && !result.Reproducible() {
		return &ExitError{Code: 1}
	}
	return nil
}

// loadEvents reads a snapshot JSON document, falling back to a JSONL audit log.
func loadEvents(path, traceID string) ([]tracer.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var snap tracer.Snapshot
	if err := json.Unmarshal(data, &snap); err == nil && snap.TraceState.TraceID != "" {
		if traceID != "" && snap.TraceState.TraceID != traceID {
			return nil, nil
		}
		return snap.Events, nil
	}

	return audit.ReadEvents(path, audit.Filter{TraceID: traceID})
}
