package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tracegate/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs tracegate as an MCP (Model Context Protocol) server over stdio.\n" +
		"Every tool call of the connected agent is one trace. The denylist file\n" +
		"is watched and reloaded while the server runs.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime("tracegate mcp")
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := mcp.New(rt.sess, mcp.Config{
		Version:   version,
		Approvals: rt.approvals,
		Logger:    componentLogger("mcp"),
	})

	err = serve(context.Background(), rt.engine, srv.Run)
	if cerr := srv.Close(); cerr != nil {
		logger.Error().Err(cerr).Msg("flush audit log")
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Trace summary:")
	_ = writeJSON(cmd.ErrOrStderr(), rt.sess.Snapshot().TraceState)
	return err
}
