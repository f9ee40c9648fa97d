package tracer

import (
	"math"

	"github.com/ppiankov/tracegate/internal/model"
)

// TraceAccumulator maintains evolving trace state and the ordered list of
// events for one trace. It has a single writer; callers that share one across
// goroutines must serialize access.
type TraceAccumulator struct {
	State  *model.TraceState
	Events []Event
}

// NewAccumulator creates a TraceAccumulator. An empty traceID gets a fresh one.
func NewAccumulator(traceID string) *TraceAccumulator {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return &TraceAccumulator{
		State:  model.NewTraceState(traceID),
		Events: []Event{},
	}
}

// UpdateStateFromAction normalizes metadata and folds it into the trace state.
// Sensitivity and volumes never decrease and egress never returns to internal.
// Returns the normalized ResultMeta for reuse.
func (ta *TraceAccumulator) UpdateStateFromAction(action *model.Action) model.ResultMeta {
	meta := action.NormalizeMeta()
	s := ta.State

	source := action.Source()
	if !s.HasSource(source) {
		s.SeenSources = append(s.SeenSources, source)
	}

	if meta.Sensitivity.Outranks(s.MaxSensitivity) {
		s.MaxSensitivity = meta.Sensitivity
	}

	s.VolumeRows = addCount(s.VolumeRows, meta.Rows)
	s.VolumeBytes = addCount(s.VolumeBytes, meta.Bytes)

	if meta.Egress == model.EgressExternal {
		s.Egress = model.EgressExternal
	}

	for _, t := range meta.Tags {
		if !s.HasTag(t) {
			s.Tags = append(s.Tags, t)
		}
	}

	return meta
}

// addCount adds two non-negative counts, saturating at math.MaxInt.
func addCount(total, n int) int {
	if n > math.MaxInt-total {
		return math.MaxInt
	}
	return total + n
}

// BuildEvent creates an Event from an action and a decision descriptor. It
// does not touch trace state. A nil meta is taken from the action without
// normalizing it in place.
func (ta *TraceAccumulator) BuildEvent(
	spanID string,
	parentSpanID string,
	actor map[string]any,
	purpose string,
	action *model.Action,
	decision map[string]any,
	meta *model.ResultMeta,
) Event {
	var m model.ResultMeta
	if meta != nil {
		m = *meta
	} else {
		m = action.NormalizedMeta()
	}

	return Event{
		Timestamp:    UTCNowISO(),
		TraceID:      ta.State.TraceID,
		SpanID:       spanID,
		ParentSpanID: parentSpanID,
		Actor:        copyMap(actor),
		Purpose:      purpose,
		Action: ActionSnapshot{
			Type:      "tool_call",
			Tool:      action.Tool,
			Resource:  action.Resource,
			Operation: action.Operation,
			Params:    copyMap(action.Params),
		},
		Data: DataSnapshot{
			Classification: string(m.Sensitivity),
			Tags:           append([]string{}, m.Tags...),
			Volume:         Volume{Rows: m.Rows, Bytes: m.Bytes},
		},
		Egress: EgressInfo{
			Direction:   string(m.Egress),
			Destination: m.Destination,
		},
		Decision: copyMap(decision),
	}
}

// Record appends an event to the log.
func (ta *TraceAccumulator) Record(event Event) {
	ta.Events = append(ta.Events, event)
}

// RecordAction updates state, builds the event, and records it.
func (ta *TraceAccumulator) RecordAction(
	actor map[string]any,
	purpose string,
	action *model.Action,
	decision map[string]any,
	parentSpanID string,
) Event {
	meta := ta.UpdateStateFromAction(action)
	ev := ta.BuildEvent(NewSpanID(), parentSpanID, actor, purpose, action, decision, &meta)
	ta.Record(ev)
	return ev
}

// Snapshot is the exported form of a trace: state plus ordered events.
type Snapshot struct {
	TraceState model.TraceState `json:"trace_state"`
	Events     []Event          `json:"events"`
}

// Snapshot returns a deep copy that shares nothing with the accumulator.
func (ta *TraceAccumulator) Snapshot() Snapshot {
	events := make([]Event, len(ta.Events))
	for i, e := range ta.Events {
		events[i] = e.Clone()
	}
	return Snapshot{
		TraceState: ta.State.Clone(),
		Events:     events,
	}
}
