// Package metrics exposes Prometheus collectors for policy decisions.
//
// Metrics:
//   - tracegate_policy_decisions_total: decisions by outcome and policy id
//   - tracegate_policy_evaluation_seconds: evaluation latency
//   - tracegate_risk_score: distribution of computed risk scores
//   - tracegate_denylist_blocks_total: denylist hits by category
//   - tracegate_enforcement_blocks_total: payloads refused at enforcement
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tracegate"

// Collector owns a private registry so embedding hosts never collide with
// their own default registry.
type Collector struct {
	registry *prometheus.Registry

	decisions         *prometheus.CounterVec
	evaluationSeconds prometheus.Histogram
	riskScore         prometheus.Histogram
	denylistBlocks    *prometheus.CounterVec
	enforcementBlocks *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "policy",
				Name:      "decisions_total",
				Help:      "Total number of policy decisions",
			},
			[]string{"decision", "policy_id"},
		),
		evaluationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "policy",
				Name:      "evaluation_seconds",
				Help:      "Duration of policy evaluation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
		),
		riskScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "risk_score",
				Help:      "Computed risk scores of evaluated actions",
				Buckets:   []float64{1, 3, 5, 7, 9, 11, 15, 21},
			},
		),
		denylistBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "denylist",
				Name:      "blocks_total",
				Help:      "Total number of denylist blocks",
			},
			[]string{"category"},
		),
		enforcementBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "enforcement",
				Name:      "blocks_total",
				Help:      "Total number of payloads refused at enforcement",
			},
			[]string{"decision"},
		),
	}

	c.registry.MustRegister(
		c.decisions,
		c.evaluationSeconds,
		c.riskScore,
		c.denylistBlocks,
		c.enforcementBlocks,
	)
	return c
}

// Registry returns the underlying registry for gathering.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveDecision records one policy decision and its latency.
func (c *Collector) ObserveDecision(decision, policyID string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.decisions.WithLabelValues(decision, policyID).Inc()
	c.evaluationSeconds.Observe(elapsed.Seconds())
}

// ObserveRisk records a computed risk score.
func (c *Collector) ObserveRisk(score int) {
	if c == nil {
		return
	}
	c.riskScore.Observe(float64(score))
}

// DenylistBlock counts a denylist hit in the given category.
func (c *Collector) DenylistBlock(category string) {
	if c == nil {
		return
	}
	c.denylistBlocks.WithLabelValues(category).Inc()
}

// EnforcementBlock counts a payload refused by enforcement.
func (c *Collector) EnforcementBlock(decision string) {
	if c == nil {
		return
	}
	c.enforcementBlocks.WithLabelValues(decision).Inc()
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
