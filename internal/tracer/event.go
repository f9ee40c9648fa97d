package tracer

// Event is an immutable, JSON-serializable record of one intercepted action.
// The decision is a plain map so the audit schema does not follow the
// internal result type.
type Event struct {
	Timestamp    string         `json:"ts"`
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Actor        map[string]any `json:"actor"`
	Purpose      string         `json:"purpose"`
	Action       ActionSnapshot `json:"action"`
	Data         DataSnapshot   `json:"data"`
	Egress       EgressInfo     `json:"egress"`
	Decision     map[string]any `json:"decision"`
}

// ActionSnapshot is the recorded shape of an action.
type ActionSnapshot struct {
	Type      string         `json:"type"`
	Tool      string         `json:"tool"`
	Resource  string         `json:"resource"`
	Operation string         `json:"operation"`
	Params    map[string]any `json:"params,omitempty"`
}

// DataSnapshot is the recorded classification of an action's result.
type DataSnapshot struct {
	Classification string   `json:"classification"`
	Tags           []string `json:"tags"`
	Volume         Volume   `json:"volume"`
}

// Volume is the recorded size of an action's result.
type Volume struct {
	Rows  int `json:"rows"`
	Bytes int `json:"bytes"`
}

// EgressInfo records where an action's data went.
type EgressInfo struct {
	Direction   string `json:"direction"`
	Destination string `json:"destination"`
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	out := e
	out.Actor = copyMap(e.Actor)
	out.Action.Params = copyMap(e.Action.Params)
	out.Data.Tags = append([]string{}, e.Data.Tags...)
	out.Decision = copyMap(e.Decision)
	return out
}

// DecisionResult returns the decision tag recorded in the event, if any.
func (e Event) DecisionResult() string {
	s, _ := e.Decision["result"].(string)
	return s
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyMap(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string{}, x...)
	case map[string]string:
		out := make(map[string]string, len(x))
		for k, s := range x {
			out[k] = s
		}
		return out
	default:
		return v
	}
}
