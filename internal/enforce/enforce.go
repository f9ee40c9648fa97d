// Package enforce applies a policy decision to the payload of an operation.
package enforce

import (
	"errors"
	"fmt"

	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/redact"
)

// Sentinels matched by errors.Is against an *EnforcementError.
var (
	ErrPolicyDenied     = errors.New("policy denied")
	ErrApprovalRequired = errors.New("approval required")
)

// EnforcementError is returned when a policy decision blocks execution.
type EnforcementError struct {
	Decision    model.Decision
	Reason      string
	PolicyID    string
	ApprovalKey string
}

func (e *EnforcementError) Error() string {
	if e.Decision == model.RequireApproval {
		return fmt.Sprintf("approval required: %s (%s)", e.ApprovalKey, e.Reason)
	}
	return fmt.Sprintf("policy denied: %s", e.Reason)
}

// Is reports whether target is the sentinel for this error's decision.
func (e *EnforcementError) Is(target error) bool {
	switch target {
	case ErrPolicyDenied:
		return e.Decision == model.Deny
	case ErrApprovalRequired:
		return e.Decision == model.RequireApproval
	default:
		return false
	}
}

// AsEnforcementError unwraps err to an *EnforcementError, if it is one.
func AsEnforcementError(err error) (*EnforcementError, bool) {
	var ee *EnforcementError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// Enforce applies a policy decision to data.
// Returns the (possibly modified) data, or an error if blocked.
func Enforce(result model.PolicyResult, data any) (any, error) {
	switch o := result.Outcome.(type) {
	case model.Allowed:
		return data, nil

	case model.Redacted:
		out := redact.RedactAuto(data, o.Directive.ExtraKeys)
		return redact.MaskStrings(out, o.Directive.Patterns), nil

	case model.ApprovalRequired:
		return nil, &EnforcementError{
			Decision:    model.RequireApproval,
			Reason:      result.Reason,
			PolicyID:    result.PolicyID,
			ApprovalKey: o.Key,
		}

	case model.Rewritten:
		if s, ok := data.(string); ok {
			return redact.RewriteOutputText(s, o.Patterns), nil
		}
		return o.Replacement, nil

	default:
		// Denied, and a result without an outcome.
		return nil, &EnforcementError{
			Decision: model.Deny,
			Reason:   result.Reason,
			PolicyID: result.PolicyID,
		}
	}
}
