package policy

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ppiankov/tracegate/internal/denylist"
	"github.com/ppiankov/tracegate/internal/model"
)

// Fixed policy ids for the non-rule paths.
const (
	PolicyDenylist = "denylist.block"
	PolicyApproval = "risk.approval"
	PolicyRedact   = "risk.redact"
	PolicyAllow    = "risk.allow"

	// ApprovedPrefix prefixes the approval key in the policy id of an
	// operation that proceeded on a granted approval.
	ApprovedPrefix = "approval."

	// HighRiskApprovalKey is the approval key for threshold escalations.
	HighRiskApprovalKey = "high_risk_action"
)

// Explanation is the step-by-step account of one evaluation.
type Explanation struct {
	Purpose     string             `json:"purpose"`
	Source      string             `json:"source"`
	NewSource   bool               `json:"new_source"`
	Denylist    *denylist.Match    `json:"denylist,omitempty"`
	MatchedRule *Rule              `json:"matched_rule,omitempty"`
	Meta        model.ResultMeta   `json:"meta"`
	Risk        *RiskBreakdown     `json:"risk,omitempty"`
	Result      model.PolicyResult `json:"result"`
}

// Evaluate decides a single action in the context of the current trace state.
//
// Evaluation order (must not be changed):
//  1. Denylist check, hard block
//  2. Metadata normalization (idempotent, in place on the action)
//  3. Purpose-bound rules, first match wins
//  4. Risk score thresholds
//
// A nil denylist loads the per-user one, falling back to defaults. Evaluate
// never mutates state; recording the action is the tracer's job.
func Evaluate(action *model.Action, state *model.TraceState, purpose string, dl *denylist.Denylist, cfg *PolicyConfig) model.PolicyResult {
	return explain(action, state, purpose, dl, cfg).Result
}

// Explain evaluates like Evaluate and returns the reasoning behind it.
func Explain(action *model.Action, state *model.TraceState, purpose string, dl *denylist.Denylist, cfg *PolicyConfig) Explanation {
	return explain(action, state, purpose, dl, cfg)
}

func explain(action *model.Action, state *model.TraceState, purpose string, dl *denylist.Denylist, cfg *PolicyConfig) Explanation {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if dl == nil {
		dl = denylist.Load("", zerolog.Nop())
	}
	if state == nil {
		state = model.NewTraceState("")
	}

	source := action.Source()
	ex := Explanation{
		Purpose:   purpose,
		Source:    source,
		NewSource: !state.HasSource(source),
	}

	// Step 1: denylist (highest priority)
	if m, blocked := dl.Check(action.Resource, action.Tool); blocked {
		ex.Denylist = &m
		ex.Meta = action.NormalizedMeta()
		ex.Result = model.PolicyResult{
			Outcome:  model.Denied{},
			Reason:   "denylisted: " + m.Reason,
			PolicyID: PolicyDenylist,
		}
		return ex
	}

	// Step 2: normalization
	meta := action.NormalizeMeta()
	ex.Meta = meta

	// Step 3: purpose-bound rules
	for i := range cfg.Rules {
		rule := cfg.Rules[i]
		if !matchRule(rule, purpose, action.Resource) {
			continue
		}
		reason := rule.Reason
		if reason == "" {
			reason = fmt.Sprintf("%s purpose: %s requires %s", rule.Purpose, rule.ResourcePattern, rule.Decision)
		}
		ex.MatchedRule = &rule
		ex.Result = model.PolicyResult{
			Outcome:  ruleOutcome(rule),
			Reason:   reason,
			PolicyID: rulePolicyID(rule),
		}
		return ex
	}

	// Step 4: risk thresholds
	b := scoreBreakdown(meta, ex.NewSource)
	ex.Risk = &b
	ex.Result = decideByRisk(b.Total)
	return ex
}

func decideByRisk(risk int) model.PolicyResult {
	switch {
	case risk >= ApprovalMin:
		return model.PolicyResult{
			Outcome:  model.ApprovalRequired{Key: HighRiskApprovalKey},
			Reason:   fmt.Sprintf("risk score %d reaches approval threshold %d", risk, ApprovalMin),
			PolicyID: PolicyApproval,
		}
	case risk > AllowMax:
		return model.PolicyResult{
			Outcome:  model.Redacted{Directive: model.RedactionDirective{Auto: true}},
			Reason:   fmt.Sprintf("risk score %d above allow threshold %d, auto-redact", risk, AllowMax),
			PolicyID: PolicyRedact,
		}
	default:
		return model.PolicyResult{
			Outcome:  model.Allowed{},
			Reason:   fmt.Sprintf("risk score %d within allow threshold %d", risk, AllowMax),
			PolicyID: PolicyAllow,
		}
	}
}
