package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tracegate/internal/model"
)

var validate = validator.New()

// Rule is a purpose-bound hard rule. Rules are evaluated in order and the
// first match wins.
type Rule struct {
	ID              string   `yaml:"id,omitempty" json:"id,omitempty"`
	Purpose         string   `yaml:"purpose" json:"purpose" validate:"required"`
	ResourcePattern string   `yaml:"resource_pattern" json:"resource_pattern"`
	Decision        string   `yaml:"decision" json:"decision" validate:"required,oneof=allow deny allow_with_redaction require_approval rewrite_output"`
	Reason          string   `yaml:"reason,omitempty" json:"reason,omitempty"`
	ApprovalKey     string   `yaml:"approval_key,omitempty" json:"approval_key,omitempty" validate:"required_if=Decision require_approval"`
	ExtraKeys       []string `yaml:"extra_keys,omitempty" json:"extra_keys,omitempty"`
	Patterns        []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	OutputRewrite   string   `yaml:"output_rewrite,omitempty" json:"output_rewrite,omitempty"`
}

// PolicyConfig holds the purpose-bound rules. Risk weights and thresholds are
// constants, not configuration.
type PolicyConfig struct {
	Rules []Rule `yaml:"rules" json:"rules" validate:"dive"`
}

// DefaultConfig returns the built-in rule set.
func DefaultConfig() *PolicyConfig {
	return &PolicyConfig{
		Rules: []Rule{
			{
				Purpose:         "SOC_efficiency",
				ResourcePattern: "*salary*",
				Decision:        string(model.RequireApproval),
				Reason:          "access to salary data is not allowed for SOC efficiency tasks without approval",
				ApprovalKey:     "soc_salary_access",
			},
		},
	}
}

// DefaultPath returns ~/.tracegate/policy.yaml, or "" when there is no home.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tracegate", "policy.yaml")
}

// Validate checks every rule.
func (c *PolicyConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid policy config: %s", model.ErrInvalidArgument, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid policy config: %w", err)
	}
	return nil
}

// LoadConfig loads policy configuration from a YAML file.
// Empty path falls back to ~/.tracegate/policy.yaml.
// A missing file returns defaults. Invalid YAML or rules return an error.
func LoadConfig(path string) (*PolicyConfig, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads policy configuration and returns the SHA-256 of
// the raw bytes on disk. When defaults are used the hash is of empty input.
func LoadConfigWithHash(path string) (*PolicyConfig, string, error) {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return DefaultConfig(), hashOf(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashOf(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read policy config: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, "", err
	}
	return cfg, hashOf(data), nil
}

// ParseConfig decodes and validates policy YAML. A document without a rules
// key keeps the default rules; an explicit empty list removes them.
func ParseConfig(data []byte) (*PolicyConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func hashOf(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// matchRule checks if a rule applies to the given purpose and resource.
// Purpose: exact, case-sensitive match or "*" for any.
// ResourcePattern: *x* for contains, *.ext for suffix, /prefix/* for prefix, exact otherwise.
// Resource matching is case-insensitive.
func matchRule(rule Rule, purpose, resource string) bool {
	if rule.Purpose != "*" && rule.Purpose != purpose {
		return false
	}

	pattern := strings.ToLower(rule.ResourcePattern)
	if pattern == "" || pattern == "*" {
		return true
	}
	res := strings.ToLower(resource)

	switch {
	case len(pattern) > 1 && strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		return strings.Contains(res, pattern[1:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(res, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(res, pattern[:len(pattern)-1])
	default:
		return res == pattern
	}
}

// rulePolicyID returns the rule's id, or one derived from purpose and pattern.
func rulePolicyID(rule Rule) string {
	if rule.ID != "" {
		return rule.ID
	}
	pattern := strings.Trim(rule.ResourcePattern, "*")
	pattern = strings.Trim(pattern, ".")
	if pattern == "" {
		pattern = "all"
	}
	return fmt.Sprintf("purpose.%s.%s", rule.Purpose, pattern)
}

// ruleOutcome builds the variant a matched rule decides.
func ruleOutcome(rule Rule) model.Outcome {
	d, _ := model.ParseDecision(rule.Decision)
	switch d {
	case model.Allow:
		return model.Allowed{}
	case model.AllowWithRedaction:
		return model.Redacted{Directive: model.RedactionDirective{
			Auto:      true,
			ExtraKeys: append([]string(nil), rule.ExtraKeys...),
			Patterns:  append([]string(nil), rule.Patterns...),
		}}
	case model.RequireApproval:
		return model.ApprovalRequired{Key: rule.ApprovalKey}
	case model.RewriteOutput:
		return model.Rewritten{
			Replacement: rule.OutputRewrite,
			Patterns:    append([]string(nil), rule.Patterns...),
		}
	default:
		return model.Denied{}
	}
}

// DefaultConfigYAML returns a commented YAML string for `tracegate policy init`.
func DefaultConfigYAML() string {
	return `# tracegate policy configuration
#
# Evaluation order (cannot be changed):
#   1. Denylist check -> deny
#   2. Purpose-bound rules below (first match wins)
#   3. Risk score thresholds (fixed):
#        risk <= 5       -> allow
#        5 < risk < 11   -> allow_with_redaction
#        risk >= 11      -> require_approval
#
# Rule fields:
#   id: optional policy id recorded in audit events
#   purpose: exact match or "*" for any purpose
#   resource_pattern: *x* contains, *.ext suffix, prefix* prefix, exact otherwise
#   decision: allow | deny | allow_with_redaction | require_approval | rewrite_output
#   reason: human-readable reason (auto-generated if omitted)
#   approval_key: required when decision is require_approval
#   extra_keys: extra fields to mask for allow_with_redaction
#   patterns: extra regexes to mask for allow_with_redaction and rewrite_output
#   output_rewrite: replacement for non-text output under rewrite_output
rules:
  - purpose: SOC_efficiency
    resource_pattern: "*salary*"
    decision: require_approval
    reason: "access to salary data is not allowed for SOC efficiency tasks without approval"
    approval_key: soc_salary_access
`
}
