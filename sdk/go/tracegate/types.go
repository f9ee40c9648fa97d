package tracegate

import (
	"fmt"

	"github.com/ppiankov/tracegate/internal/enforce"
	"github.com/ppiankov/tracegate/internal/model"
)

// Decision is the policy enforcement outcome.
type Decision string

const (
	Allow              Decision = Decision(model.Allow)
	Deny               Decision = Decision(model.Deny)
	AllowWithRedaction Decision = Decision(model.AllowWithRedaction)
	RequireApproval    Decision = Decision(model.RequireApproval)
	RewriteOutput      Decision = Decision(model.RewriteOutput)
)

// Action describes what a tool intends to do.
type Action struct {
	Tool      string         // tool name: "file_read", "http_get", "shell_exec", "hr_api"
	Resource  string         // target: URL, file path, command line, logical resource
	Operation string         // "read", "execute", "get", ...
	Params    map[string]any // optional tool parameters, recorded but not evaluated
	Meta      map[string]any // optional: sensitivity, tags, bytes, rows, egress, destination
}

// Result is a policy evaluation outcome.
type Result struct {
	Decision      Decision
	Reason        string
	PolicyID      string
	ApprovalKey   string
	OutputRewrite string
}

// Allowed reports whether the wrapped call would run.
func (r Result) Allowed() bool {
	return !model.Decision(r.Decision).Blocking()
}

// BlockedError is returned when policy denies or requires approval for an action.
type BlockedError struct {
	Action      Action
	Decision    Decision
	Reason      string
	PolicyID    string
	ApprovalKey string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("tracegate blocked (%s): %s", e.Decision, e.Reason)
}

func toInternalAction(a Action) *model.Action {
	return &model.Action{
		Tool:      a.Tool,
		Resource:  a.Resource,
		Operation: a.Operation,
		Params:    a.Params,
		RawMeta:   a.Meta,
	}
}

func toResult(pr model.PolicyResult) Result {
	return Result{
		Decision:      Decision(pr.Decision()),
		Reason:        pr.Reason,
		PolicyID:      pr.PolicyID,
		ApprovalKey:   pr.ApprovalKey(),
		OutputRewrite: pr.OutputRewrite(),
	}
}

func toBlocked(a Action, err error) error {
	ee, ok := enforce.AsEnforcementError(err)
	if !ok {
		return err
	}
	return &BlockedError{
		Action:      a,
		Decision:    Decision(ee.Decision),
		Reason:      ee.Reason,
		PolicyID:    ee.PolicyID,
		ApprovalKey: ee.ApprovalKey,
	}
}
