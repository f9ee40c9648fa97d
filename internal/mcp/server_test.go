package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/tracegate/internal/approval"
	"github.com/ppiankov/tracegate/internal/denylist"
	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/policy"
	"github.com/ppiankov/tracegate/internal/session"
)

var testFS = fstest.MapFS{
	"notes/todo.txt":      {Data: []byte("ship it, ping bob@corp.example")},
	"corp/hr/payroll.txt": {Data: []byte("alice 100")},
}

func newTestServer(t *testing.T, rules ...policy.Rule) (*Server, *approval.Store) {
	t.Helper()
	cfg := policy.DefaultConfig()
	cfg.Rules = append(rules, cfg.Rules...)

	store, err := approval.NewStore(t.TempDir())
	require.NoError(t, err)

	sess := session.New(
		policy.NewEngine(cfg, denylist.NewDefault()),
		session.WithPurpose("test"),
		session.WithApprovals(store),
	)
	return New(sess, Config{Approvals: store, Logger: zerolog.Nop(), FS: testFS}), store
}

func call() *mcpsdk.CallToolRequest { return &mcpsdk.CallToolRequest{} }

func TestCheckDryRun(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleCheck(ctx, call(), CheckInput{Tool: "shell_exec", Resource: "rm -rf /"})
	require.NoError(t, err)
	assert.Equal(t, "deny", out.Decision)
	assert.Equal(t, policy.PolicyDenylist, out.PolicyID)

	_, out, err = s.handleCheck(ctx, call(), CheckInput{Tool: "shell_exec", Resource: "ls /tmp"})
	require.NoError(t, err)
	assert.Equal(t, "allow", out.Decision)

	_, out, err = s.handleCheck(ctx, call(), CheckInput{
		Tool:     "hr_api",
		Resource: "hr/people",
		Meta:     map[string]any{"sensitivity": "high"},
	})
	require.NoError(t, err)
	assert.Equal(t, "allow_with_redaction", out.Decision)
	require.NotNil(t, out.Redactions)
	assert.True(t, out.Redactions.Auto)

	_, trace, err := s.handleTrace(ctx, call(), TraceInput{})
	require.NoError(t, err)
	assert.Empty(t, trace.Events, "check must not record")
}

func TestCheckRequiresToolOrResource(t *testing.T) {
	s, _ := newTestServer(t)
	_, _, err := s.handleCheck(context.Background(), call(), CheckInput{})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestRedact(t *testing.T) {
	s, _ := newTestServer(t)
	_, out, err := s.handleRedact(context.Background(), call(), RedactInput{
		Data:     map[string]any{"name": "Alice", "note": "code 4711", "dept": "eng"},
		Patterns: []string{`\d{4}`},
	})
	require.NoError(t, err)

	data, ok := out.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "***", data["name"])
	assert.Equal(t, "code ***", data["note"])
	assert.Equal(t, "eng", data["dept"])
}

func TestExecAllowedAndRecorded(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	result, out, err := s.handleExec(ctx, call(), ExecInput{Command: "echo", Args: []string{"hello"}})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Nil(t, out.Block)
	assert.Contains(t, out.Stdout, "hello")

	_, trace, err := s.handleTrace(ctx, call(), TraceInput{})
	require.NoError(t, err)
	require.Len(t, trace.Events, 1)
	assert.Equal(t, "shell_exec", trace.Events[0].Action.Tool)
	assert.Equal(t, []string{"shell_exec"}, trace.TraceState.SeenSources)
}

func TestExecBlocked(t *testing.T) {
	s, _ := newTestServer(t)

	result, out, err := s.handleExec(context.Background(), call(), ExecInput{Command: "rm", Args: []string{"-rf", "/"}})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	require.NotNil(t, out.Block)
	assert.Equal(t, "deny", out.Block.Decision)
}

func TestReadFile(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleRead(ctx, call(), ReadInput{Path: "notes/todo.txt"})
	require.NoError(t, err)
	assert.Equal(t, "ship it, ping bob@corp.example", out.Content)

	result, out, err := s.handleRead(ctx, call(), ReadInput{Path: "~/.ssh/id_rsa"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "deny", out.Block.Decision)

	_, _, err = s.handleRead(ctx, call(), ReadInput{Path: "missing.txt"})
	assert.Error(t, err)
}

func TestHTTPApprovalFlow(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("up"))
	}))
	t.Cleanup(upstream.Close)

	s, _ := newTestServer(t, policy.Rule{
		Purpose:         "*",
		ResourcePattern: "*/status",
		Decision:        "require_approval",
		ApprovalKey:     "status_page",
	})
	ctx := context.Background()

	result, out, err := s.handleHTTP(ctx, call(), HTTPInput{URL: upstream.URL + "/status"})
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Equal(t, "require_approval", out.Block.Decision)
	assert.Equal(t, "status_page", out.Block.ApprovalKey)

	_, pending, err := s.handlePending(ctx, call(), PendingInput{})
	require.NoError(t, err)
	require.Len(t, pending.Approvals, 1)
	assert.Equal(t, "status_page", pending.Approvals[0].Key)
	assert.Equal(t, "pending", pending.Approvals[0].Status)
	assert.Equal(t, "http_get", pending.Approvals[0].Tool)

	_, approved, err := s.handleApprove(ctx, call(), ApproveInput{Key: "status_page"})
	require.NoError(t, err)
	assert.Equal(t, "approved", approved.Status)

	result, out, err = s.handleHTTP(ctx, call(), HTTPInput{URL: upstream.URL + "/status"})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, "up", out.Body)

	// one-time approval is consumed
	result, _, err = s.handleHTTP(ctx, call(), HTTPInput{URL: upstream.URL + "/status"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHTTPDenylisted(t *testing.T) {
	s, _ := newTestServer(t)
	result, out, err := s.handleHTTP(context.Background(), call(), HTTPInput{
		Method: "post",
		URL:    "https://api.stripe.com/v1/charges",
		Body:   `{"amount":1}`,
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "deny", out.Block.Decision)
}

func TestApproveRejectsBadDuration(t *testing.T) {
	s, _ := newTestServer(t)
	_, _, err := s.handleApprove(context.Background(), call(), ApproveInput{Key: "k", Duration: "soon"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid duration"))
}
