package model

import (
	"encoding/json"
	"fmt"
)

// Decision is the policy enforcement outcome tag.
type Decision string

const (
	Allow              Decision = "allow"
	Deny               Decision = "deny"
	AllowWithRedaction Decision = "allow_with_redaction"
	RequireApproval    Decision = "require_approval"
	RewriteOutput      Decision = "rewrite_output"
)

// Decisions lists every decision in escalating order of restriction.
var Decisions = []Decision{Allow, AllowWithRedaction, RewriteOutput, RequireApproval, Deny}

// ParseDecision maps a string to a Decision. Unknown values fail closed to Deny.
func ParseDecision(s string) (Decision, bool) {
	switch Decision(s) {
	case Allow, Deny, AllowWithRedaction, RequireApproval, RewriteOutput:
		return Decision(s), true
	default:
		return Deny, false
	}
}

// Blocking reports whether the decision stops the operation.
func (d Decision) Blocking() bool {
	return d == Deny || d == RequireApproval
}

// RedactionDirective describes what to mask beyond the default PII keys.
type RedactionDirective struct {
	Auto      bool     `json:"auto,omitempty"`
	ExtraKeys []string `json:"extra_keys,omitempty"`
	Patterns  []string `json:"patterns,omitempty"`
}

// IsZero reports whether the directive carries nothing.
func (r RedactionDirective) IsZero() bool {
	return !r.Auto && len(r.ExtraKeys) == 0 && len(r.Patterns) == 0
}

// Outcome is the closed set of decision variants. Payload fields live only on
// the variant they belong to.
type Outcome interface {
	Decision() Decision
	isOutcome()
}

// Allowed lets the operation proceed unchanged.
type Allowed struct{}

// Denied blocks the operation outright.
type Denied struct{}

// Redacted lets the operation proceed with masked output.
type Redacted struct {
	Directive RedactionDirective
}

// ApprovalRequired blocks until Key is granted out of band.
type ApprovalRequired struct {
	Key string
}

// Rewritten replaces the output: text payloads are pattern-masked, anything
// else becomes Replacement.
type Rewritten struct {
	Replacement string
	Patterns    []string
}

func (Allowed) Decision() Decision          { return Allow }
func (Denied) Decision() Decision           { return Deny }
func (Redacted) Decision() Decision         { return AllowWithRedaction }
func (ApprovalRequired) Decision() Decision { return RequireApproval }
func (Rewritten) Decision() Decision        { return RewriteOutput }

func (Allowed) isOutcome()          {}
func (Denied) isOutcome()           {}
func (Redacted) isOutcome()         {}
func (ApprovalRequired) isOutcome() {}
func (Rewritten) isOutcome()        {}

// PolicyResult is the output of policy evaluation. It is a value: once
// constructed nothing mutates it.
type PolicyResult struct {
	Outcome  Outcome
	Reason   string
	PolicyID string
}

// Decision returns the outcome tag. A result without an outcome is a deny.
func (r PolicyResult) Decision() Decision {
	if r.Outcome == nil {
		return Deny
	}
	return r.Outcome.Decision()
}

// ApprovalKey is non-empty only for require_approval results.
func (r PolicyResult) ApprovalKey() string {
	if o, ok := r.Outcome.(ApprovalRequired); ok {
		return o.Key
	}
	return ""
}

// OutputRewrite is the literal replacement of a rewrite_output result.
func (r PolicyResult) OutputRewrite() string {
	if o, ok := r.Outcome.(Rewritten); ok {
		return o.Replacement
	}
	return ""
}

// Redactions returns the directive carried by redaction or rewrite results.
func (r PolicyResult) Redactions() (RedactionDirective, bool) {
	switch o := r.Outcome.(type) {
	case Redacted:
		return o.Directive, true
	case Rewritten:
		if len(o.Patterns) == 0 {
			return RedactionDirective{}, false
		}
		return RedactionDirective{Patterns: o.Patterns}, true
	default:
		return RedactionDirective{}, false
	}
}

// ResultJSON is the stable wire shape of a PolicyResult.
type ResultJSON struct {
	Decision      Decision            `json:"decision" jsonschema:"enum=allow,enum=deny,enum=allow_with_redaction,enum=require_approval,enum=rewrite_output"`
	Reason        string              `json:"reason" jsonschema:"minLength=1"`
	Redactions    *RedactionDirective `json:"redactions,omitempty"`
	ApprovalKey   string              `json:"approval_key,omitempty"`
	OutputRewrite string              `json:"output_rewrite,omitempty"`
	PolicyID      string              `json:"policy_id"`
}

// JSON returns the flat serializable form.
func (r PolicyResult) JSON() ResultJSON {
	out := ResultJSON{
		Decision:      r.Decision(),
		Reason:        r.Reason,
		ApprovalKey:   r.ApprovalKey(),
		OutputRewrite: r.OutputRewrite(),
		PolicyID:      r.PolicyID,
	}
	if d, ok := r.Redactions(); ok {
		out.Redactions = &d
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (r PolicyResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.JSON())
}

// UnmarshalJSON rebuilds the variant from the flat shape.
func (r *PolicyResult) UnmarshalJSON(data []byte) error {
	var raw ResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode policy result: %w", err)
	}
	*r = raw.Result()
	return nil
}

// Result converts the wire shape back into a PolicyResult.
func (rj ResultJSON) Result() PolicyResult {
	var directive RedactionDirective
	if rj.Redactions != nil {
		directive = *rj.Redactions
	}
	d, _ := ParseDecision(string(rj.Decision))

	var o Outcome
	switch d {
	case Allow:
		o = Allowed{}
	case AllowWithRedaction:
		o = Redacted{Directive: directive}
	case RequireApproval:
		o = ApprovalRequired{Key: rj.ApprovalKey}
	case RewriteOutput:
		o = Rewritten{Replacement: rj.OutputRewrite, Patterns: directive.Patterns}
	default:
		o = Denied{}
	}
	return PolicyResult{Outcome: o, Reason: rj.Reason, PolicyID: rj.PolicyID}
}

// ToMap returns the decision descriptor recorded in audit events. It is a plain
// map so the event schema does not follow the internal result shape.
func (r PolicyResult) ToMap() map[string]any {
	m := map[string]any{
		"result":       string(r.Decision()),
		"reason":       r.Reason,
		"policy_id":    r.PolicyID,
		"approval_key": r.ApprovalKey(),
	}
	if d, ok := r.Redactions(); ok {
		m["redactions"] = map[string]any{
			"auto":       d.Auto,
			"extra_keys": stringsToAny(d.ExtraKeys),
			"patterns":   stringsToAny(d.Patterns),
		}
	}
	if rw := r.OutputRewrite(); rw != "" {
		m["output_rewrite"] = rw
	}
	return m
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
