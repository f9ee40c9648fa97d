// Package mcp exposes the interceptor pipeline as an MCP server over stdio.
// Every tool call runs in the server's single session, so calls accumulate
// into one trace.
package mcp

import (
	"context"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/tracegate/internal/approval"
	"github.com/ppiankov/tracegate/internal/cmdguard"
	"github.com/ppiankov/tracegate/internal/fileguard"
	"github.com/ppiankov/tracegate/internal/httpguard"
	"github.com/ppiankov/tracegate/internal/session"
)

// Config holds MCP server collaborators.
type Config struct {
	Version string
	// Approvals backs the approve and pending tools. Nil disables them.
	Approvals *approval.Store
	Logger    zerolog.Logger
	// FS overrides the filesystem used by the read tool.
	FS fileguard.FS
	// HTTPBase overrides the transport used by the http tool.
	HTTPBase http.RoundTripper
}

// Server wraps the MCP SDK server around one session.
type Server struct {
	mcpServer *mcpsdk.Server
	sess      *session.Session
	cmds      *cmdguard.Guard
	files     *fileguard.Guard
	http      *http.Client
	approvals *approval.Store
	log       zerolog.Logger
}

// New creates an MCP server evaluating every tool call through sess.
func New(sess *session.Session, cfg Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	var fileOpts []fileguard.Option
	if cfg.FS != nil {
		fileOpts = append(fileOpts, fileguard.WithFS(cfg.FS))
	}

	s := &Server{
		sess:      sess,
		cmds:      cmdguard.New(sess),
		files:     fileguard.New(sess, fileOpts...),
		http:      &http.Client{Transport: &httpguard.Transport{Session: sess, Base: cfg.HTTPBase}},
		approvals: cfg.Approvals,
		log:       cfg.Logger,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "tracegate",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run serves MCP on stdio. Blocks until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info().Str("trace_id", s.sess.TraceID()).Msg("mcp server starting on stdio")
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close flushes the session's audit sink.
func (s *Server) Close() error {
	return s.sess.Flush()
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tracegate_check",
		Description: "Evaluate an action against policy without executing or recording it (dry-run).",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tracegate_redact",
		Description: "Mask PII keys and text patterns in a JSON value.",
	}, s.handleRedact)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tracegate_trace",
		Description: "Return the accumulated trace state and the ordered event list of this session.",
	}, s.handleTrace)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tracegate_exec",
		Description: "Execute a command through policy enforcement. Blocked commands return the decision and reason.",
	}, s.handleExec)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tracegate_http",
		Description: "Make an HTTP request through policy enforcement. The response body is redacted or rewritten as decided.",
	}, s.handleHTTP)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tracegate_read",
		Description: "Read a file through policy enforcement. Sensitive paths are redacted or blocked.",
	}, s.handleRead)

	if s.approvals == nil {
		return
	}

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tracegate_approve",
		Description: "Grant approval for a require_approval action. Use after a blocked action returns an approval_key.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tracegate_pending",
		Description: "List approval requests.",
	}, s.handlePending)
}
