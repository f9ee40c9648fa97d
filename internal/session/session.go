// Package session runs the interceptor pipeline for one trace: evaluate the
// action, record it, consult approvals, produce the payload, enforce.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ppiankov/tracegate/internal/approval"
	"github.com/ppiankov/tracegate/internal/enforce"
	"github.com/ppiankov/tracegate/internal/metrics"
	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/policy"
	"github.com/ppiankov/tracegate/internal/tracer"
)

// Sink receives every recorded event, for example an audit log.
type Sink interface {
	Record(ev tracer.Event) error
}

// Approvals is the out-of-band approval workflow.
type Approvals interface {
	Use(key string) (bool, error)
	Request(r approval.Request) error
}

// Producer performs the real operation once policy allows it.
type Producer func(ctx context.Context) (any, error)

// Session owns one trace. All methods are safe for concurrent use; calls are
// serialized so the trace sees one ordered chain of actions.
type Session struct {
	mu        sync.Mutex
	engine    *policy.Engine
	acc       *tracer.TraceAccumulator
	actor     map[string]any
	purpose   string
	sink      Sink
	approvals Approvals
	log       zerolog.Logger
	metrics   *metrics.Collector
}

// Option configures a Session.
type Option func(*Session)

// WithTraceID sets the trace id instead of generating one.
func WithTraceID(id string) Option {
	return func(s *Session) { s.acc = tracer.NewAccumulator(id) }
}

// WithActor sets the caller identity recorded on every event.
func WithActor(actor map[string]any) Option {
	return func(s *Session) { s.actor = actor }
}

// WithPurpose sets the declared purpose used by purpose-bound rules.
func WithPurpose(purpose string) Option {
	return func(s *Session) { s.purpose = purpose }
}

// WithSink forwards recorded events to sink.
func WithSink(sink Sink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithApprovals enables approval consultation for require_approval results.
func WithApprovals(a Approvals) Option {
	return func(s *Session) { s.approvals = a }
}

// WithLogger sets the session logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithMetrics counts enforcement blocks.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Session) { s.metrics = c }
}

// New creates a session evaluating against engine. A nil engine uses the
// default rules and denylist.
func New(engine *policy.Engine, opts ...Option) *Session {
	if engine == nil {
		engine = policy.NewEngine(nil, nil)
	}
	s := &Session{
		engine: engine,
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.acc == nil {
		s.acc = tracer.NewAccumulator("")
	}
	s.log = s.log.With().Str("trace_id", s.acc.State.TraceID).Logger()
	return s
}

// TraceID returns the session's trace id.
func (s *Session) TraceID() string {
	return s.acc.State.TraceID
}

// Purpose returns the declared purpose.
func (s *Session) Purpose() string { return s.purpose }

// Check evaluates action against the current trace state without recording it.
func (s *Session) Check(action *model.Action) model.PolicyResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Evaluate(action, s.acc.State, s.purpose)
}

// Decide evaluates action and records it in the trace. The returned event is
// a copy of what was recorded.
func (s *Session) Decide(ctx context.Context, action *model.Action) (model.PolicyResult, tracer.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.engine.Evaluate(action, s.acc.State, s.purpose)
	ev := s.acc.RecordAction(s.actor, s.purpose, action, result.ToMap(), SpanFromContext(ctx))
	s.forward(ev)
	return result, ev.Clone()
}

// forward hands ev to the sink. Callers hold s.mu.
func (s *Session) forward(ev tracer.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Record(ev); err != nil {
		s.log.Error().Err(err).Str("span_id", ev.SpanID).Msg("audit sink failed")
	}
}

// recordApproved records that action proceeded on a granted approval. The
// event is a child of the require_approval event and leaves trace state
// alone, since that event already folded the action in.
func (s *Session) recordApproved(action *model.Action, result model.PolicyResult, parent string) (model.PolicyResult, tracer.Event) {
	key := result.ApprovalKey()
	approved := model.PolicyResult{
		Outcome:  model.Allowed{},
		Reason:   "approved out of band: " + key,
		PolicyID: policy.ApprovedPrefix + key,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.acc.BuildEvent(tracer.NewSpanID(), parent, s.actor, s.purpose, action, approved.ToMap(), nil)
	s.acc.Record(ev)
	s.forward(ev)
	return approved, ev.Clone()
}

// Intercept runs the full pipeline for one operation. produce is only called
// when policy lets the operation proceed; its payload is then enforced. The
// context passed to produce carries the new span as parent for nested calls.
func (s *Session) Intercept(ctx context.Context, action *model.Action, produce Producer) (any, error) {
	payload, _, err := s.Run(ctx, action, produce)
	return payload, err
}

// Run is Intercept that also returns the policy result the operation ran
// under. For a granted approval that is the recorded allow, not the
// require_approval that preceded it.
func (s *Session) Run(ctx context.Context, action *model.Action, produce Producer) (any, model.PolicyResult, error) {
	result, ev := s.Decide(ctx, action)
	ctx = ContextWithSpan(ctx, ev.SpanID)

	if result.Decision() == model.RequireApproval && s.approved(result, action) {
		if err := ctx.Err(); err != nil {
			return nil, result, err
		}
		result, ev = s.recordApproved(action, result, ev.SpanID)
		payload, err := produce(ContextWithSpan(ctx, ev.SpanID))
		return payload, result, err
	}

	if result.Decision().Blocking() {
		_, err := enforce.Enforce(result, nil)
		s.metrics.EnforcementBlock(string(result.Decision()))
		s.log.Warn().
			Str("tool", action.Tool).
			Str("resource", action.Resource).
			Str("decision", string(result.Decision())).
			Str("policy_id", result.PolicyID).
			Msg("operation blocked")
		return nil, result, err
	}

	if err := ctx.Err(); err != nil {
		return nil, result, err
	}
	payload, err := produce(ctx)
	if err != nil {
		return nil, result, err
	}
	payload, err = enforce.Enforce(result, payload)
	return payload, result, err
}

// approved consumes a granted approval, or files a pending request.
func (s *Session) approved(result model.PolicyResult, action *model.Action) bool {
	if s.approvals == nil {
		return false
	}
	key := result.ApprovalKey()

	ok, err := s.approvals.Use(key)
	if err != nil {
		s.log.Error().Err(err).Str("approval_key", key).Msg("approval lookup failed")
		return false
	}
	if ok {
		s.log.Info().Str("approval_key", key).Str("resource", action.Resource).Msg("approval used")
		return true
	}

	err = s.approvals.Request(approval.Request{
		Key:      key,
		Reason:   result.Reason,
		PolicyID: result.PolicyID,
		Tool:     action.Tool,
		Resource: action.Resource,
		TraceID:  s.TraceID(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("approval_key", key).Msg("approval request failed")
	}
	return false
}

// Snapshot exports trace state and events.
func (s *Session) Snapshot() tracer.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Snapshot()
}

// Flush syncs the sink when it supports it.
func (s *Session) Flush() error {
	syncer, ok := s.sink.(interface{ Sync() error })
	if !ok {
		return nil
	}
	if err := syncer.Sync(); err != nil {
		return fmt.Errorf("flush audit sink: %w", err)
	}
	return nil
}

type spanKey struct{}

// ContextWithSpan marks spanID as the parent for actions intercepted under ctx.
func ContextWithSpan(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanKey{}, spanID)
}

// SpanFromContext returns the parent span id carried by ctx, if any.
func SpanFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(spanKey{}).(string)
	return id
}
