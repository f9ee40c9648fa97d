package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTraceStateDefaults(t *testing.T) {
	state := NewTraceState("test-123")

	assert.Equal(t, "test-123", state.TraceID)
	assert.Equal(t, SensLow, state.MaxSensitivity)
	assert.Equal(t, EgressInternal, state.Egress)
	assert.Empty(t, state.SeenSources)
	assert.Empty(t, state.Tags)
}

func TestResultMetaFromMapCoercesBadInput(t *testing.T) {
	rm := ResultMetaFromMap(nil)
	assert.Equal(t, SensLow, rm.Sensitivity)
	assert.Equal(t, EgressInternal, rm.Egress)
	assert.NotNil(t, rm.Tags)

	rm = ResultMetaFromMap(map[string]any{"sensitivity": "invalid", "egress": "sideways"})
	assert.Equal(t, SensLow, rm.Sensitivity)
	assert.Equal(t, EgressInternal, rm.Egress)

	rm = ResultMetaFromMap(map[string]any{
		"sensitivity": "high",
		"egress":      "external",
		"rows":        1000,
		"bytes":       5000,
		"tags":        []any{"PII", "HR"},
		"destination": "s3://bucket",
	})
	assert.Equal(t, SensHigh, rm.Sensitivity)
	assert.Equal(t, EgressExternal, rm.Egress)
	assert.Equal(t, 1000, rm.Rows)
	assert.Equal(t, 5000, rm.Bytes)
	assert.Equal(t, []string{"PII", "HR"}, rm.Tags)
	assert.Equal(t, "s3://bucket", rm.Destination)
}

func TestResultMetaCoercesVolumes(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want int
	}{
		{"int", 42, 42},
		{"float", 12.9, 12},
		{"int64", int64(7), 7},
		{"numeric string", " 15 ", 15},
		{"json number", json.Number("99"), 99},
		{"garbage string", "lots", 0},
		{"negative", -5, 0},
		{"bool", true, 0},
		{"nil", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rm := ResultMetaFromMap(map[string]any{"rows": tc.in, "bytes": tc.in})
			assert.Equal(t, tc.want, rm.Rows)
			assert.Equal(t, tc.want, rm.Bytes)
		})
	}
}

func TestResultMetaCoercesTags(t *testing.T) {
	assert.Equal(t, []string{"PII"}, ResultMetaFromMap(map[string]any{"tags": "PII"}).Tags)
	assert.Equal(t, []string{"a", "1"}, ResultMetaFromMap(map[string]any{"tags": []any{"a", 1, nil}}).Tags)
	assert.Equal(t, []string{"x"}, ResultMetaFromMap(map[string]any{"tags": []string{"x"}}).Tags)
}

func TestNormalizeMetaIdempotent(t *testing.T) {
	raw := map[string]any{
		"sensitivity": "HIGH",
		"rows":        "50",
		"tags":        []any{"HR"},
		"extra":       "kept",
	}
	action := &Action{Tool: "hr_api", Resource: "hr/salary_bands", RawMeta: raw}

	first := action.NormalizeMeta()
	second := action.NormalizeMeta()

	assert.Equal(t, first, second)
	assert.Equal(t, first, action.NormalizedMeta())
	assert.Equal(t, SensLow, first.Sensitivity, "sensitivity is case-sensitive and coerces to low")
	assert.Equal(t, 50, first.Rows)
	assert.Equal(t, "kept", action.RawMeta["extra"], "passthrough keys survive normalization")
	assert.Equal(t, 50, action.RawMeta["rows"])
	assert.Equal(t, "low", action.RawMeta["sensitivity"])
	assert.Equal(t, "50", raw["rows"], "the caller's map is not modified")
}

func TestNormalizedMetaDoesNotShareTags(t *testing.T) {
	action := &Action{Tool: "t", RawMeta: map[string]any{"tags": []any{"PII"}}}
	meta := action.NormalizeMeta()
	meta.Tags[0] = "mutated"

	assert.Equal(t, []string{"PII"}, action.NormalizedMeta().Tags)
}

func TestActionSource(t *testing.T) {
	assert.Equal(t, "hr_api", (&Action{Tool: "hr_api", Resource: "hr/x"}).Source())
	assert.Equal(t, "hr", (&Action{Resource: "hr/salary"}).Source())
	assert.Equal(t, "orgchart", (&Action{Resource: "orgchart"}).Source())
	assert.Equal(t, "unknown", (&Action{}).Source())
}

func TestTraceStateClone(t *testing.T) {
	state := NewTraceState("t-1")
	state.SeenSources = append(state.SeenSources, "a")
	state.Tags = append(state.Tags, "PII")

	cp := state.Clone()
	cp.SeenSources[0] = "b"
	cp.Tags[0] = "HR"

	require.True(t, state.HasSource("a"))
	require.True(t, state.HasTag("PII"))
}

func TestSensitivityOutranks(t *testing.T) {
	assert.True(t, SensHigh.Outranks(SensMedium))
	assert.True(t, SensMedium.Outranks(SensLow))
	assert.False(t, SensLow.Outranks(SensLow))
	assert.False(t, SensLow.Outranks(SensHigh))
}
