package policy

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/tracegate/internal/denylist"
	"github.com/ppiankov/tracegate/internal/metrics"
	"github.com/ppiankov/tracegate/internal/model"
)

// Engine is a configured policy decision point. Construct one per host and
// pass it to every call site. It is safe for concurrent use; the denylist
// can be swapped while evaluations run.
type Engine struct {
	cfg     *PolicyConfig
	dl      atomic.Pointer[denylist.Denylist]
	log     zerolog.Logger
	metrics *metrics.Collector
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the decision logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// NewEngine creates an engine. A nil config means DefaultConfig and a nil
// denylist means the built-in defaults.
func NewEngine(cfg *PolicyConfig, dl *denylist.Denylist, opts ...Option) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if dl == nil {
		dl = denylist.NewDefault()
	}
	e := &Engine{cfg: cfg, log: zerolog.Nop()}
	e.dl.Store(dl)
	for _, o := range opts {
		o(e)
	}
	return e
}

// Config returns the rule configuration.
func (e *Engine) Config() *PolicyConfig { return e.cfg }

// Denylist returns the current denylist.
func (e *Engine) Denylist() *denylist.Denylist { return e.dl.Load() }

// SetDenylist replaces the denylist for subsequent evaluations.
func (e *Engine) SetDenylist(dl *denylist.Denylist) {
	if dl == nil {
		return
	}
	e.dl.Store(dl)
}

// Evaluate decides action against state and records metrics.
func (e *Engine) Evaluate(action *model.Action, state *model.TraceState, purpose string) model.PolicyResult {
	return e.Explain(action, state, purpose).Result
}

// Explain evaluates and returns the full reasoning.
func (e *Engine) Explain(action *model.Action, state *model.TraceState, purpose string) Explanation {
	start := time.Now()
	ex := explain(action, state, purpose, e.dl.Load(), e.cfg)
	elapsed := time.Since(start)

	res := ex.Result
	e.metrics.ObserveDecision(string(res.Decision()), res.PolicyID, elapsed)
	if ex.Denylist != nil {
		e.metrics.DenylistBlock(string(ex.Denylist.Category))
	}

	ev := e.log.Debug().
		Str("tool", action.Tool).
		Str("resource", action.Resource).
		Str("decision", string(res.Decision())).
		Str("policy_id", res.PolicyID)
	if ex.Risk != nil {
		e.metrics.ObserveRisk(ex.Risk.Total)
		ev = ev.Int("risk", ex.Risk.Total)
	}
	ev.Msg("policy decision")

	return ex
}
