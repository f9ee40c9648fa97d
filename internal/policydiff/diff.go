// Package policydiff compares two policy configurations and two denylists so
// a reviewer can see what a change does before it ships.
package policydiff

import (
	"fmt"

	"github.com/ppiankov/tracegate/internal/denylist"
	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/policy"
)

// RuleChange is a rule addition, removal, modification, or reordering.
type RuleChange struct {
	Type    string `json:"type"` // "added", "removed", "changed", "moved"
	Rule    string `json:"rule"`
	Comment string `json:"comment,omitempty"`
}

// PatternChange is one denylist pattern added or removed.
type PatternChange struct {
	Type     string `json:"type"` // "added", "removed"
	Category string `json:"category"`
	Pattern  string `json:"pattern"`
}

// DiffResult holds the comparison.
type DiffResult struct {
	OldPath        string          `json:"old_path"`
	NewPath        string          `json:"new_path"`
	RuleChanges    []RuleChange    `json:"rule_changes"`
	PatternChanges []PatternChange `json:"pattern_changes"`
	HasChanges     bool            `json:"has_changes"`
}

// strictness ranks decisions from most to least permissive.
var strictness = map[string]int{
	string(model.Allow):              0,
	string(model.RewriteOutput):      1,
	string(model.AllowWithRedaction): 1,
	string(model.RequireApproval):    2,
	string(model.Deny):               3,
}

// Diff compares rules. Rules are matched by purpose and resource pattern;
// because the first matching rule wins, a rule whose position changed is
// reported as moved.
func Diff(old, new *policy.PolicyConfig) *DiffResult {
	r := &DiffResult{RuleChanges: []RuleChange{}, PatternChanges: []PatternChange{}}
	diffRules(r, old.Rules, new.Rules)
	r.HasChanges = len(r.RuleChanges) > 0
	return r
}

// DiffDenylist adds denylist pattern changes to r.
func DiffDenylist(r *DiffResult, old, new denylist.Patterns) {
	diffPatterns(r, denylist.CategoryURLs, old.URLs, new.URLs)
	diffPatterns(r, denylist.CategoryFiles, old.Files, new.Files)
	diffPatterns(r, denylist.CategoryCommands, old.Commands, new.Commands)
	r.HasChanges = len(r.RuleChanges) > 0 || len(r.PatternChanges) > 0
}

func ruleKey(r policy.Rule) string {
	return r.Purpose + "|" + r.ResourcePattern
}

func ruleLabel(r policy.Rule) string {
	return fmt.Sprintf("purpose=%s resource=%s", r.Purpose, r.ResourcePattern)
}

func decisionComment(old, new string) string {
	switch {
	case strictness[new] > strictness[old]:
		return "stricter"
	case strictness[new] < strictness[old]:
		return "looser"
	default:
		return ""
	}
}

func diffRules(r *DiffResult, oldRules, newRules []policy.Rule) {
	oldIdx := make(map[string]int, len(oldRules))
	for i, rule := range oldRules {
		oldIdx[ruleKey(rule)] = i
	}
	newIdx := make(map[string]int, len(newRules))
	for i, rule := range newRules {
		newIdx[ruleKey(rule)] = i
	}

	for i, rule := range newRules {
		j, exists := oldIdx[ruleKey(rule)]
		if !exists {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type:    "added",
				Rule:    fmt.Sprintf("%s -> %s", ruleLabel(rule), rule.Decision),
				Comment: decisionComment(string(model.Allow), rule.Decision),
			})
			continue
		}

		oldRule := oldRules[j]
		if oldRule.Decision != rule.Decision {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type:    "changed",
				Rule:    fmt.Sprintf("%s -> %s (was: %s)", ruleLabel(rule), rule.Decision, oldRule.Decision),
				Comment: decisionComment(oldRule.Decision, rule.Decision),
			})
		} else if oldRule.ApprovalKey != rule.ApprovalKey {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "changed",
				Rule: fmt.Sprintf("%s approval_key %s (was: %s)", ruleLabel(rule), rule.ApprovalKey, oldRule.ApprovalKey),
			})
		}
		if i != j {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "moved",
				Rule: fmt.Sprintf("%s #%d -> #%d", ruleLabel(rule), j+1, i+1),
			})
		}
	}

	for _, rule := range oldRules {
		if _, exists := newIdx[ruleKey(rule)]; !exists {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type:    "removed",
				Rule:    fmt.Sprintf("%s -> %s", ruleLabel(rule), rule.Decision),
				Comment: decisionComment(rule.Decision, string(model.Allow)),
			})
		}
	}
}

func diffPatterns(r *DiffResult, category denylist.Category, oldPatterns, newPatterns []string) {
	oldSet := make(map[string]bool, len(oldPatterns))
	for _, p := range oldPatterns {
		oldSet[p] = true
	}
	newSet := make(map[string]bool, len(newPatterns))
	for _, p := range newPatterns {
		newSet[p] = true
	}

	for _, p := range newPatterns {
		if !oldSet[p] {
			r.PatternChanges = append(r.PatternChanges, PatternChange{Type: "added", Category: string(category), Pattern: p})
		}
	}
	for _, p := range oldPatterns {
		if !newSet[p] {
			r.PatternChanges = append(r.PatternChanges, PatternChange{Type: "removed", Category: string(category), Pattern: p})
		}
	}
}
