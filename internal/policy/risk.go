package policy

import "github.com/ppiankov/tracegate/internal/model"

// Decision cutoffs. These are policy, not tunables: moving them changes what
// an agent may do unattended and needs sign-off.
const (
	// AllowMax is the highest score that is allowed outright.
	AllowMax = 5
	// ApprovalMin is the lowest score that requires human approval.
	ApprovalMin = 11
)

// Score components.
const (
	WeightLow    = 1
	WeightMedium = 3
	WeightHigh   = 6

	RowsElevated   = 1_000
	RowsBulk       = 10_000
	ElevatedPoints = 3
	BulkPoints     = 6
	EgressPoints   = 6
	NewSourcePoint = 2
)

// SensitivityWeight returns the base score for a sensitivity level.
func SensitivityWeight(s model.Sensitivity) int {
	switch s {
	case model.SensHigh:
		return WeightHigh
	case model.SensMedium:
		return WeightMedium
	default:
		return WeightLow
	}
}

// RiskBreakdown is the itemized score, kept for explanations.
type RiskBreakdown struct {
	Sensitivity int `json:"sensitivity"`
	Volume      int `json:"volume"`
	Egress      int `json:"egress"`
	NewSource   int `json:"new_source"`
	Total       int `json:"total"`
}

// RiskScore computes a deterministic, explainable risk score.
// It is cumulative scoring over semantics, not anomaly detection.
func RiskScore(meta model.ResultMeta, state *model.TraceState, isNewSource bool) int {
	return scoreBreakdown(meta, isNewSource).Total
}

// scoreBreakdown does not read state: novelty is decided by the caller
// against seen_sources before the state update.
func scoreBreakdown(meta model.ResultMeta, isNewSource bool) RiskBreakdown {
	var b RiskBreakdown

	// Sensitivity dominates.
	b.Sensitivity = SensitivityWeight(meta.Sensitivity)

	if meta.Rows > RowsElevated {
		b.Volume += ElevatedPoints
	}
	if meta.Rows > RowsBulk {
		b.Volume += BulkPoints
	}

	// External egress is always expensive.
	if meta.Egress == model.EgressExternal {
		b.Egress = EgressPoints
	}

	if isNewSource {
		b.NewSource = NewSourcePoint
	}

	b.Total = b.Sensitivity + b.Volume + b.Egress + b.NewSource
	return b
}
