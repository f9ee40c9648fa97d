package scenario

// Action defines the action under test. Meta is the raw metadata the
// action would carry; it is normalized exactly as at runtime.
type Action struct {
	Tool      string         `yaml:"tool" validate:"required_without=Resource"`
	Resource  string         `yaml:"resource"`
	Operation string         `yaml:"operation,omitempty"`
	Params    map[string]any `yaml:"params,omitempty"`
	Meta      map[string]any `yaml:"meta,omitempty"`
}

// Case is one assertion within a scenario.
type Case struct {
	Name    string `yaml:"name,omitempty"`
	Action  Action `yaml:"action"`
	Purpose string `yaml:"purpose,omitempty"`
	Expect  string `yaml:"expect" validate:"required,oneof=allow deny allow_with_redaction require_approval rewrite_output"`
	// Optional stricter expectations.
	PolicyID    string `yaml:"policy_id,omitempty"`
	ApprovalKey string `yaml:"approval_key,omitempty"`
}

// Scenario is a named collection of policy cases. With Sequence set, cases
// run in order against one trace so state accumulation is part of the
// assertion; otherwise each case starts from a fresh trace.
type Scenario struct {
	Name     string `yaml:"name" validate:"required"`
	Purpose  string `yaml:"purpose,omitempty"`
	Sequence bool   `yaml:"sequence,omitempty"`
	Cases    []Case `yaml:"cases" validate:"required,min=1,dive"`
}

// CaseResult is the outcome of evaluating one case.
type CaseResult struct {
	Index    int    `json:"index"`
	Name     string `json:"name,omitempty"`
	Passed   bool   `json:"passed"`
	Tool     string `json:"tool"`
	Resource string `json:"resource"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	PolicyID string `json:"policy_id"`
	Reason   string `json:"reason"`
	Failure  string `json:"failure,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
