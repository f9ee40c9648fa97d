// Package replay re-evaluates recorded events against an engine and reports
// where the decision changed. Events are grouped per trace and replayed in
// order so each trace accumulates state exactly as it did when recorded.
package replay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/policy"
	"github.com/ppiankov/tracegate/internal/tracer"
)

// Drift is one replayed event whose decision differs from the recording.
type Drift struct {
	Timestamp   string `json:"ts"`
	TraceID     string `json:"trace_id"`
	SpanID      string `json:"span_id"`
	Tool        string `json:"tool"`
	Resource    string `json:"resource"`
	OldDecision string `json:"old_decision"`
	NewDecision string `json:"new_decision"`
	OldPolicyID string `json:"old_policy_id"`
	NewPolicyID string `json:"new_policy_id"`
	NewReason   string `json:"new_reason"`
}

// Result is the outcome of a replay.
type Result struct {
	Traces       int     `json:"traces"`
	TotalEvents  int     `json:"total_events"`
	Changed      int     `json:"changed"`
	NewlyBlocked int     `json:"newly_blocked"`
	NewlyAllowed int     `json:"newly_allowed"`
	Approvals    int     `json:"approvals"`
	Drift        []Drift `json:"drift"`
}

// Reproducible reports whether every event replayed to its recorded decision.
func (r *Result) Reproducible() bool { return r.Changed == 0 }

// Run replays events through engine. Each trace gets a fresh accumulator
// keyed by its recorded trace id.
func Run(events []tracer.Event, engine *policy.Engine) *Result {
	if engine == nil {
		engine = policy.NewEngine(nil, nil)
	}

	var order []string
	byTrace := make(map[string][]tracer.Event)
	for _, ev := range events {
		if _, seen := byTrace[ev.TraceID]; !seen {
			order = append(order, ev.TraceID)
		}
		byTrace[ev.TraceID] = append(byTrace[ev.TraceID], ev)
	}

	res := &Result{Traces: len(order), Drift: []Drift{}}
	for _, traceID := range order {
		acc := tracer.NewAccumulator(traceID)
		for _, ev := range byTrace[traceID] {
			// Grants record an out-of-band approval, not an evaluation.
			if id, _ := ev.Decision["policy_id"].(string); strings.HasPrefix(id, policy.ApprovedPrefix) {
				res.Approvals++
				continue
			}
			res.TotalEvents++
			action := ActionFromEvent(ev)

			result := engine.Evaluate(action, acc.State, ev.Purpose)
			acc.RecordAction(ev.Actor, ev.Purpose, action, result.ToMap(), ev.ParentSpanID)

			oldDecision := strings.ToLower(ev.DecisionResult())
			newDecision := string(result.Decision())
			if oldDecision == newDecision {
				continue
			}

			oldPolicyID, _ := ev.Decision["policy_id"].(string)
			res.Drift = append(res.Drift, Drift{
				Timestamp:   ev.Timestamp,
				TraceID:     ev.TraceID,
				SpanID:      ev.SpanID,
				Tool:        ev.Action.Tool,
				Resource:    ev.Action.Resource,
				OldDecision: oldDecision,
				NewDecision: newDecision,
				OldPolicyID: oldPolicyID,
				NewPolicyID: result.PolicyID,
				NewReason:   result.Reason,
			})
			res.Changed++

			oldParsed, _ := model.ParseDecision(oldDecision)
			switch {
			case !oldParsed.Blocking() && result.Decision().Blocking():
				res.NewlyBlocked++
			case oldParsed.Blocking() && !result.Decision().Blocking():
				res.NewlyAllowed++
			}
		}
	}
	return res
}

// ActionFromEvent rebuilds the action an event was recorded for. The
// recorded classification becomes the action's raw metadata.
func ActionFromEvent(ev tracer.Event) *model.Action {
	tags := make([]any, len(ev.Data.Tags))
	for i, t := range ev.Data.Tags {
		tags[i] = t
	}
	meta := map[string]any{
		"sensitivity": ev.Data.Classification,
		"tags":        tags,
		"rows":        ev.Data.Volume.Rows,
		"bytes":       ev.Data.Volume.Bytes,
		"egress":      ev.Egress.Direction,
		"destination": ev.Egress.Destination,
	}

	var params map[string]any
	if ev.Action.Params != nil {
		params = ev.Clone().Action.Params
	}
	return &model.Action{
		Tool:      ev.Action.Tool,
		Resource:  ev.Action.Resource,
		Operation: ev.Action.Operation,
		Params:    params,
		RawMeta:   meta,
	}
}

// FormatText renders a replay result for terminals.
func FormatText(r *Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Replayed %d events across %d traces.\n", r.TotalEvents, r.Traces)
	if len(r.Drift) == 0 {
		b.WriteString("\nAll decisions reproduced.\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, d := range r.Drift {
		ts := d.Timestamp
		if len(ts) >= 19 {
			ts = ts[11:19]
		}
		resource := d.Resource
		if len(resource) > 40 {
			resource = resource[:37] + "..."
		}
		fmt.Fprintf(&b, "  CHANGED  %-8s  %-12s %-40s %s -> %s\n",
			ts, d.Tool, resource, d.OldDecision, d.NewDecision)
	}

	fmt.Fprintf(&b, "\n%d of %d events changed.", r.Changed, r.TotalEvents)
	if r.NewlyBlocked > 0 || r.NewlyAllowed > 0 {
		fmt.Fprintf(&b, " %d newly blocked, %d newly allowed.", r.NewlyBlocked, r.NewlyAllowed)
	}
	b.WriteString("\n")
	return b.String()
}

// FormatJSON renders a replay result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}
