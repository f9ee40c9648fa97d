// Package scenario runs YAML policy assertions: each case names an action
// and the decision the engine must reach for it.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/policy"
	"github.com/ppiankov/tracegate/internal/tracer"
)

var validate = validator.New()

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validate.Struct(&s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return nil, fmt.Errorf("%w: scenario: %s", model.ErrInvalidArgument, strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("%w: scenario: %v", model.ErrInvalidArgument, err)
	}
	return &s, nil
}

// Run evaluates every case against engine.
func Run(s *Scenario, engine *policy.Engine) *RunResult {
	if engine == nil {
		engine = policy.NewEngine(nil, nil)
	}
	result := &RunResult{Name: s.Name, Total: len(s.Cases)}

	shared := tracer.NewAccumulator("scenario-" + slug(s.Name))
	for i, c := range s.Cases {
		acc := shared
		if !s.Sequence {
			acc = tracer.NewAccumulator(fmt.Sprintf("scenario-%d", i+1))
		}

		action := &model.Action{
			Tool:      c.Action.Tool,
			Resource:  c.Action.Resource,
			Operation: c.Action.Operation,
			Params:    c.Action.Params,
			RawMeta:   c.Action.Meta,
		}
		purpose := c.Purpose
		if purpose == "" {
			purpose = s.Purpose
		}

		got := engine.Evaluate(action, acc.State, purpose)
		if s.Sequence {
			acc.RecordAction(nil, purpose, action, got.ToMap(), "")
		}

		cr := CaseResult{
			Index:    i + 1,
			Name:     c.Name,
			Tool:     c.Action.Tool,
			Resource: c.Action.Resource,
			Expected: strings.ToLower(c.Expect),
			Actual:   string(got.Decision()),
			PolicyID: got.PolicyID,
			Reason:   got.Reason,
		}
		cr.Failure = mismatch(c, cr, got)
		if cr.Failure == "" {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

func mismatch(c Case, cr CaseResult, got model.PolicyResult) string {
	switch {
	case cr.Actual != cr.Expected:
		return fmt.Sprintf("expected %s, got %s", cr.Expected, cr.Actual)
	case c.PolicyID != "" && c.PolicyID != got.PolicyID:
		return fmt.Sprintf("expected policy_id %s, got %s", c.PolicyID, got.PolicyID)
	case c.ApprovalKey != "" && c.ApprovalKey != got.ApprovalKey():
		return fmt.Sprintf("expected approval_key %s, got %s", c.ApprovalKey, got.ApprovalKey())
	default:
		return ""
	}
}

// LoadAndRun loads one scenario file and runs it.
func LoadAndRun(path string, engine *policy.Engine) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	result := Run(s, engine)
	result.File = path
	return result, nil
}

// RunGlob runs every scenario file matching pattern, in path order.
func RunGlob(pattern string, engine *policy.Engine) ([]*RunResult, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: scenario glob %q: %v", model.ErrInvalidArgument, pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files match %q", pattern)
	}
	sort.Strings(paths)

	results := make([]*RunResult, 0, len(paths))
	for _, p := range paths {
		r, err := LoadAndRun(p, engine)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// AllPassed reports whether every case in every result passed.
func AllPassed(results []*RunResult) bool {
	for _, r := range results {
		if r.Failed > 0 {
			return false
		}
	}
	return true
}

func slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.Join(strings.Fields(s), "-")
	if s == "" {
		return "unnamed"
	}
	return s
}
