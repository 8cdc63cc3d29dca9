package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors owns every frontier metric.
type Collectors struct {
	claims            *prometheus.CounterVec
	outcomes          *prometheus.CounterVec
	reclaimed         *prometheus.CounterVec
	items             *prometheus.GaugeVec
	activeNodes       prometheus.Gauge
	heartbeatFailures prometheus.Counter
	itemDuration      *prometheus.HistogramVec
}

// New registers the collectors against the provided registry.
func New(reg prometheus.Registerer) (*Collectors, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collectors{
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontier_claims_total",
			Help: "Claim attempts partitioned by result.",
		}, []string{"result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontier_outcomes_total",
			Help: "Reported item outcomes partitioned by outcome.",
		}, []string{"outcome"}),
		reclaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontier_reclaimed_total",
			Help: "Claims released back to pending partitioned by reason.",
		}, []string{"reason"}),
		items: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "frontier_items",
			Help: "Known items partitioned by status at the last progress report.",
		}, []string{"status"}),
		activeNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "frontier_active_nodes",
			Help: "Nodes with a live heartbeat record at the last progress report.",
		}),
		heartbeatFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frontier_heartbeat_failures_total",
			Help: "Heartbeat cycles that failed to persist.",
		}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frontier_item_duration_seconds",
			Help:    "Wall time spent processing one item partitioned by outcome.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"outcome"}),
	}
	for _, collector := range []prometheus.Collector{
		c.claims,
		c.outcomes,
		c.reclaimed,
		c.items,
		c.activeNodes,
		c.heartbeatFailures,
		c.itemDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register frontier collector: %w", err)
		}
	}
	return c, nil
}

// ObserveClaim counts one claim attempt.
func (c *Collectors) ObserveClaim(result string) {
	if c == nil {
		return
	}
	c.claims.WithLabelValues(result).Inc()
}

// ObserveOutcome counts one reported outcome.
func (c *Collectors) ObserveOutcome(outcome string) {
	if c == nil {
		return
	}
	c.outcomes.WithLabelValues(outcome).Inc()
}

// ObserveReclaim counts one released claim.
func (c *Collectors) ObserveReclaim(reason string) {
	if c == nil {
		return
	}
	c.reclaimed.WithLabelValues(reason).Inc()
}

// HeartbeatFailed counts one failed heartbeat cycle.
func (c *Collectors) HeartbeatFailed() {
	if c == nil {
		return
	}
	c.heartbeatFailures.Inc()
}

// SetItems records the current per-status item counts and live node count.
func (c *Collectors) SetItems(byStatus map[string]int, activeNodes int) {
	if c == nil {
		return
	}
	for status, n := range byStatus {
		c.items.WithLabelValues(status).Set(float64(n))
	}
	c.activeNodes.Set(float64(activeNodes))
}

// ObserveItemDuration records processing time for one item.
func (c *Collectors) ObserveItemDuration(outcome string, d time.Duration) {
	if c == nil || d <= 0 {
		return
	}
	c.itemDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
