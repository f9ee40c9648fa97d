package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sensitivity classifies data sensitivity level.
type Sensitivity string

const (
	SensLow    Sensitivity = "low"
	SensMedium Sensitivity = "medium"
	SensHigh   Sensitivity = "high"
)

// SensRank maps sensitivity to a comparable integer for monotonic escalation.
var SensRank = map[Sensitivity]int{
	SensLow:    0,
	SensMedium: 1,
	SensHigh:   2,
}

// Outranks reports whether s is strictly more sensitive than other.
func (s Sensitivity) Outranks(other Sensitivity) bool {
	return SensRank[s] > SensRank[other]
}

// EgressDirection indicates where data is going.
type EgressDirection string

const (
	EgressInternal EgressDirection = "internal"
	EgressExternal EgressDirection = "external"
)

// ResultMeta is standardized metadata describing what a tool call returned.
type ResultMeta struct {
	Sensitivity Sensitivity     `json:"sensitivity" jsonschema:"enum=low,enum=medium,enum=high"`
	Tags        []string        `json:"tags"`
	Rows        int             `json:"rows" jsonschema:"minimum=0"`
	Bytes       int             `json:"bytes" jsonschema:"minimum=0"`
	Egress      EgressDirection `json:"egress" jsonschema:"enum=internal,enum=external"`
	Destination string          `json:"destination"`
}

// DefaultResultMeta returns a ResultMeta with safe defaults.
func DefaultResultMeta() ResultMeta {
	return ResultMeta{
		Sensitivity: SensLow,
		Tags:        []string{},
		Egress:      EgressInternal,
	}
}

// ResultMetaFromMap creates a ResultMeta from a raw map. It never fails:
// anything it cannot interpret falls back to the default.
func ResultMetaFromMap(m map[string]any) ResultMeta {
	rm := DefaultResultMeta()
	if m == nil {
		return rm
	}

	if s, ok := m["sensitivity"].(string); ok {
		switch Sensitivity(s) {
		case SensLow, SensMedium, SensHigh:
			rm.Sensitivity = Sensitivity(s)
		}
	}

	if e, ok := m["egress"].(string); ok {
		switch EgressDirection(e) {
		case EgressInternal, EgressExternal:
			rm.Egress = EgressDirection(e)
		}
	}

	rm.Tags = toTags(m["tags"])
	rm.Rows = toCount(m["rows"])
	rm.Bytes = toCount(m["bytes"])

	switch d := m["destination"].(type) {
	case nil:
	case string:
		rm.Destination = d
	default:
		rm.Destination = fmt.Sprint(d)
	}

	return rm
}

// ToMap converts ResultMeta to a map for serialization.
func (rm ResultMeta) ToMap() map[string]any {
	tags := make([]any, len(rm.Tags))
	for i, t := range rm.Tags {
		tags[i] = t
	}
	return map[string]any{
		"sensitivity": string(rm.Sensitivity),
		"tags":        tags,
		"rows":        rm.Rows,
		"bytes":       rm.Bytes,
		"egress":      string(rm.Egress),
		"destination": rm.Destination,
	}
}

func toTags(v any) []string {
	tags := []string{}
	switch t := v.(type) {
	case nil:
	case []string:
		tags = append(tags, t...)
	case []any:
		for _, item := range t {
			if item == nil {
				continue
			}
			tags = append(tags, fmt.Sprint(item))
		}
	default:
		tags = append(tags, fmt.Sprint(t))
	}
	return tags
}

// toCount coerces a volume value to a non-negative int.
func toCount(v any) int {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int32:
		n = int(x)
	case int64:
		n = int(x)
	case uint:
		n = clampUint(uint64(x))
	case uint32:
		n = int(x)
	case uint64:
		n = clampUint(x)
	case float32:
		n = clampFloat(float64(x))
	case float64:
		n = clampFloat(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			n = int(i)
		} else if f, err := x.Float64(); err == nil {
			n = clampFloat(f)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			n = i
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

func clampUint(u uint64) int {
	if u > math.MaxInt {
		return math.MaxInt
	}
	return int(u)
}

func clampFloat(f float64) int {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= math.MaxInt {
		return math.MaxInt
	}
	return int(f)
}

// Action represents one intercepted operation in the agent chain.
type Action struct {
	Tool       string         `json:"tool"`
	Resource   string         `json:"resource"`
	Operation  string         `json:"operation"`
	Params     map[string]any `json:"params,omitempty"`
	RawMeta    map[string]any `json:"result_meta,omitempty"`
	normalized *ResultMeta
}

// NormalizedMeta returns the normalized ResultMeta, computing it if needed.
// It does not modify the action.
func (a *Action) NormalizedMeta() ResultMeta {
	if a.normalized != nil {
		return a.normalized.clone()
	}
	return ResultMetaFromMap(a.RawMeta)
}

// NormalizeMeta normalizes the raw metadata in-place. The normalized keys are
// written over a copy of the original map, so passthrough keys survive.
// Calling it again is a no-op because the merged map coerces back to the same
// ResultMeta.
func (a *Action) NormalizeMeta() ResultMeta {
	rm := ResultMetaFromMap(a.RawMeta)
	a.normalized = &rm

	merged := make(map[string]any, len(a.RawMeta)+6)
	for k, v := range a.RawMeta {
		merged[k] = v
	}
	for k, v := range rm.ToMap() {
		merged[k] = v
	}
	a.RawMeta = merged
	return rm.clone()
}

// Source identifies where an action's data comes from: the tool name, or the
// resource prefix before the first "/" when no tool is set.
func (a *Action) Source() string {
	if a.Tool != "" {
		return a.Tool
	}
	if idx := strings.Index(a.Resource, "/"); idx >= 0 {
		return a.Resource[:idx]
	}
	if a.Resource != "" {
		return a.Resource
	}
	return "unknown"
}

func (rm ResultMeta) clone() ResultMeta {
	out := rm
	out.Tags = append([]string{}, rm.Tags...)
	return out
}

// TraceState is the evolving trace-level context that policies reason about.
type TraceState struct {
	TraceID        string          `json:"trace_id"`
	SeenSources    []string        `json:"seen_sources"`
	MaxSensitivity Sensitivity     `json:"max_sensitivity"`
	VolumeRows     int             `json:"volume_rows"`
	VolumeBytes    int             `json:"volume_bytes"`
	Egress         EgressDirection `json:"egress"`
	Tags           []string        `json:"tags"`
}

// NewTraceState creates a TraceState with safe defaults.
func NewTraceState(traceID string) *TraceState {
	return &TraceState{
		TraceID:        traceID,
		SeenSources:    []string{},
		MaxSensitivity: SensLow,
		Egress:         EgressInternal,
		Tags:           []string{},
	}
}

// HasSource returns true if the source has been seen before.
func (ts *TraceState) HasSource(source string) bool {
	for _, s := range ts.SeenSources {
		if s == source {
			return true
		}
	}
	return false
}

// HasTag returns true if the tag has been merged into the trace.
func (ts *TraceState) HasTag(tag string) bool {
	for _, t := range ts.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy with no shared slices.
func (ts *TraceState) Clone() TraceState {
	out := *ts
	out.SeenSources = append([]string{}, ts.SeenSources...)
	out.Tags = append([]string{}, ts.Tags...)
	return out
}
