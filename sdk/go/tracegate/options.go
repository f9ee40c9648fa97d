package tracegate

import "github.com/rs/zerolog"

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	policyPath   string
	denylistPath string
	approvalsDir string
	auditLog     string
	purpose      string
	traceID      string
	actor        map[string]any
	logger       zerolog.Logger
}

// WithPolicy sets the path to a policy YAML file.
func WithPolicy(path string) Option {
	return func(c *clientConfig) { c.policyPath = path }
}

// WithDenylist sets the path to a denylist YAML file.
func WithDenylist(path string) Option {
	return func(c *clientConfig) { c.denylistPath = path }
}

// WithApprovalsDir sets the approval store directory.
func WithApprovalsDir(dir string) Option {
	return func(c *clientConfig) { c.approvalsDir = dir }
}

// WithAuditLog appends every decision to a hash-chained JSONL log.
func WithAuditLog(path string) Option {
	return func(c *clientConfig) { c.auditLog = path }
}

// WithPurpose sets the declared purpose of the trace.
func WithPurpose(purpose string) Option {
	return func(c *clientConfig) { c.purpose = purpose }
}

// WithTraceID continues an existing trace id instead of generating one.
func WithTraceID(id string) Option {
	return func(c *clientConfig) { c.traceID = id }
}

// WithActor sets the actor metadata recorded on every event.
func WithActor(actor map[string]any) Option {
	return func(c *clientConfig) { c.actor = actor }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *clientConfig) { c.logger = log }
}
