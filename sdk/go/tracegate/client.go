package tracegate

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ppiankov/tracegate/internal/approval"
	"github.com/ppiankov/tracegate/internal/audit"
	"github.com/ppiankov/tracegate/internal/denylist"
	"github.com/ppiankov/tracegate/internal/policy"
	"github.com/ppiankov/tracegate/internal/session"
)

// Client is one trace. Safe for concurrent tool calls; calls are serialized
// through the trace.
type Client struct {
	sess      *session.Session
	approvals *approval.Store
	log       *audit.Log
}

// New creates a Client with the given options. A corrupt policy file is an
// error; a missing or corrupt denylist falls back to the built-in patterns.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{
		purpose: "general",
		actor:   map[string]any{"sdk": "tracegate-go"},
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	policyCfg, hash, err := policy.LoadConfigWithHash(cfg.policyPath)
	if err != nil {
		return nil, fmt.Errorf("tracegate: failed to load policy config: %w", err)
	}
	dl := denylist.Load(cfg.denylistPath, cfg.logger)
	engine := policy.NewEngine(policyCfg, dl, policy.WithLogger(cfg.logger))

	store, err := approval.NewStore(cfg.approvalsDir)
	if err != nil {
		return nil, fmt.Errorf("tracegate: failed to create approval store: %w", err)
	}

	sessOpts := []session.Option{
		session.WithPurpose(cfg.purpose),
		session.WithActor(cfg.actor),
		session.WithApprovals(store),
		session.WithLogger(cfg.logger),
	}
	if cfg.traceID != "" {
		sessOpts = append(sessOpts, session.WithTraceID(cfg.traceID))
	}

	c := &Client{approvals: store}
	if cfg.auditLog != "" {
		c.log, err = audit.Open(cfg.auditLog, audit.WithPolicyHash(hash))
		if err != nil {
			return nil, fmt.Errorf("tracegate: failed to open audit log: %w", err)
		}
		sessOpts = append(sessOpts, session.WithSink(c.log))
	}
	c.sess = session.New(engine, sessOpts...)
	return c, nil
}

// TraceID returns the id of the client's trace.
func (c *Client) TraceID() string {
	return c.sess.TraceID()
}

// Check evaluates policy for an action without recording or executing it.
func (c *Client) Check(action Action) Result {
	return toResult(c.sess.Check(toInternalAction(action)))
}

// TraceSummary exports trace state and events as plain JSON values.
func (c *Client) TraceSummary() map[string]any {
	data, err := json.Marshal(c.sess.Snapshot())
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Close flushes and closes the audit log, if any.
func (c *Client) Close() error {
	if c.log == nil {
		return nil
	}
	return c.log.Close()
}
