package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/tracegate/internal/enforce"
	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/redact"
	"github.com/ppiankov/tracegate/internal/tracer"
)

// maxHTTPBody caps the response body returned to the client.
const maxHTTPBody = 1 << 20

// BlockInfo carries the decision of a blocked call.
type BlockInfo struct {
	Decision    string `json:"decision"`
	Reason      string `json:"reason"`
	PolicyID    string `json:"policy_id"`
	ApprovalKey string `json:"approval_key,omitempty"`
}

// CheckInput defines parameters for the tracegate_check tool.
type CheckInput struct {
	Tool      string         `json:"tool" jsonschema:"tool name, e.g. file_read, shell_exec, http_get"`
	Resource  string         `json:"resource" jsonschema:"resource being accessed"`
	Operation string         `json:"operation,omitempty" jsonschema:"operation, e.g. read or execute"`
	Meta      map[string]any `json:"meta,omitempty" jsonschema:"raw result metadata: sensitivity, tags, rows, bytes, egress, destination"`
}

// CheckOutput is the policy decision in its wire shape.
type CheckOutput struct {
	Decision      string                    `json:"decision"`
	Reason        string                    `json:"reason"`
	PolicyID      string                    `json:"policy_id"`
	ApprovalKey   string                    `json:"approval_key,omitempty"`
	OutputRewrite string                    `json:"output_rewrite,omitempty"`
	Redactions    *model.RedactionDirective `json:"redactions,omitempty"`
}

// RedactInput defines parameters for the tracegate_redact tool.
type RedactInput struct {
	Data      any      `json:"data" jsonschema:"JSON value to redact"`
	ExtraKeys []string `json:"extra_keys,omitempty" jsonschema:"keys to mask in addition to the default PII keys"`
	Patterns  []string `json:"patterns,omitempty" jsonschema:"regular expressions masked in every string"`
}

// RedactOutput holds the redacted value.
type RedactOutput struct {
	Data any `json:"data"`
}

// TraceInput is empty.
type TraceInput struct{}

// TraceOutput is the session snapshot.
type TraceOutput struct {
	TraceState model.TraceState `json:"trace_state"`
	Events     []tracer.Event   `json:"events"`
}

// ExecInput defines parameters for the tracegate_exec tool.
type ExecInput struct {
	Command string   `json:"command" jsonschema:"command to execute"`
	Args    []string `json:"args,omitempty" jsonschema:"command arguments"`
}

// ExecOutput contains the result of command execution or block details.
type ExecOutput struct {
	Block    *BlockInfo `json:"block,omitempty"`
	Stdout   string     `json:"stdout,omitempty"`
	Stderr   string     `json:"stderr,omitempty"`
	ExitCode int        `json:"exit_code"`
}

// HTTPInput defines parameters for the tracegate_http tool.
type HTTPInput struct {
	Method  string            `json:"method,omitempty" jsonschema:"HTTP method, GET when omitted"`
	URL     string            `json:"url" jsonschema:"request URL"`
	Headers map[string]string `json:"headers,omitempty" jsonschema:"request headers"`
	Body    string            `json:"body,omitempty" jsonschema:"request body"`
}

// HTTPOutput contains the enforced response or block details.
type HTTPOutput struct {
	Block   *BlockInfo        `json:"block,omitempty"`
	Status  int               `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// ReadInput defines parameters for the tracegate_read tool.
type ReadInput struct {
	Path string `json:"path" jsonschema:"file path"`
}

// ReadOutput contains the enforced file content or block details.
type ReadOutput struct {
	Block   *BlockInfo `json:"block,omitempty"`
	Content string     `json:"content,omitempty"`
}

// ApproveInput defines parameters for the tracegate_approve tool.
type ApproveInput struct {
	Key      string `json:"key" jsonschema:"approval key from a blocked action"`
	Duration string `json:"duration,omitempty" jsonschema:"approval duration (e.g. 5m), omit for one-time approval"`
}

// ApproveOutput confirms the approval.
type ApproveOutput struct {
	Key      string `json:"key"`
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
}

// PendingInput is empty.
type PendingInput struct{}

// PendingOutput lists approval requests.
type PendingOutput struct {
	Approvals []PendingItem `json:"approvals"`
}

// PendingItem describes a single approval request.
type PendingItem struct {
	Key       string `json:"key"`
	Status    string `json:"status"`
	Tool      string `json:"tool,omitempty"`
	Resource  string `json:"resource"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	if input.Tool == "" && input.Resource == "" {
		return nil, CheckOutput{}, fmt.Errorf("%w: tool or resource is required", model.ErrInvalidArgument)
	}
	action := &model.Action{
		Tool:      input.Tool,
		Resource:  input.Resource,
		Operation: input.Operation,
		RawMeta:   input.Meta,
	}

	rj := s.sess.Check(action).JSON()
	return nil, CheckOutput{
		Decision:      string(rj.Decision),
		Reason:        rj.Reason,
		PolicyID:      rj.PolicyID,
		ApprovalKey:   rj.ApprovalKey,
		OutputRewrite: rj.OutputRewrite,
		Redactions:    rj.Redactions,
	}, nil
}

func (s *Server) handleRedact(ctx context.Context, req *mcpsdk.CallToolRequest, input RedactInput) (*mcpsdk.CallToolResult, RedactOutput, error) {
	out := redact.RedactAuto(input.Data, input.ExtraKeys)
	return nil, RedactOutput{Data: redact.MaskStrings(out, input.Patterns)}, nil
}

func (s *Server) handleTrace(ctx context.Context, req *mcpsdk.CallToolRequest, input TraceInput) (*mcpsdk.CallToolResult, TraceOutput, error) {
	snap := s.sess.Snapshot()
	return nil, TraceOutput{TraceState: snap.TraceState, Events: snap.Events}, nil
}

func (s *Server) handleExec(ctx context.Context, req *mcpsdk.CallToolRequest, input ExecInput) (*mcpsdk.CallToolResult, ExecOutput, error) {
	result, err := s.cmds.Run(ctx, input.Command, input.Args, nil)
	if err != nil {
		if b, ok := blockedFrom(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, ExecOutput{Block: b}, nil
		}
		return nil, ExecOutput{}, err
	}

	return nil, ExecOutput{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
	}, nil
}

func (s *Server) handleHTTP(ctx context.Context, req *mcpsdk.CallToolRequest, input HTTPInput) (*mcpsdk.CallToolResult, HTTPOutput, error) {
	method := strings.ToUpper(input.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if input.Body != "" {
		body = strings.NewReader(input.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, input.URL, body)
	if err != nil {
		return nil, HTTPOutput{}, fmt.Errorf("invalid request: %w", err)
	}
	for k, v := range input.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.http.Do(httpReq)
	if err != nil {
		if b, ok := blockedFrom(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, HTTPOutput{Block: b}, nil
		}
		return nil, HTTPOutput{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return nil, HTTPOutput{}, fmt.Errorf("failed to read response: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k, vv := range resp.Header {
		headers[k] = strings.Join(vv, ", ")
	}

	return nil, HTTPOutput{
		Status:  resp.StatusCode,
		Headers: headers,
		Body:    string(data),
	}, nil
}

func (s *Server) handleRead(ctx context.Context, req *mcpsdk.CallToolRequest, input ReadInput) (*mcpsdk.CallToolResult, ReadOutput, error) {
	text, err := s.files.ReadText(ctx, input.Path)
	if err != nil {
		if b, ok := blockedFrom(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, ReadOutput{Block: b}, nil
		}
		return nil, ReadOutput{}, err
	}
	return nil, ReadOutput{Content: text}, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input ApproveInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	var duration time.Duration
	if input.Duration != "" {
		var err error
		duration, err = time.ParseDuration(input.Duration)
		if err != nil {
			return nil, ApproveOutput{}, fmt.Errorf("invalid duration %q: %w", input.Duration, err)
		}
	}

	if err := s.approvals.Approve(input.Key, duration); err != nil {
		return nil, ApproveOutput{}, err
	}
	s.log.Info().Str("approval_key", input.Key).Dur("duration", duration).Msg("approval granted over mcp")

	out := ApproveOutput{Key: input.Key, Status: "approved"}
	if duration > 0 {
		out.Duration = duration.String()
	}
	return nil, out, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	list, err := s.approvals.List()
	if err != nil {
		return nil, PendingOutput{}, err
	}

	items := make([]PendingItem, len(list))
	for i, a := range list {
		items[i] = PendingItem{
			Key:       a.Key,
			Status:    string(a.Status),
			Tool:      a.Tool,
			Resource:  a.Resource,
			Reason:    a.Reason,
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, PendingOutput{Approvals: items}, nil
}

// blockedFrom converts an enforcement error into block details for the client.
func blockedFrom(err error) (*BlockInfo, bool) {
	var ee *enforce.EnforcementError
	if !errors.As(err, &ee) {
		return nil, false
	}
	return &BlockInfo{
		Decision:    string(ee.Decision),
		Reason:      ee.Reason,
		PolicyID:    ee.PolicyID,
		ApprovalKey: ee.ApprovalKey,
	}, true
}
