// internal/utils/metrics/collector.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "solana_testlab"

// Collector owns the engine metrics. Each collector has its own registry so
// tests can build as many as they like. All methods are safe on a nil
// receiver, which turns them into no-ops.
type Collector struct {
	registry *prometheus.Registry

	ticks            *prometheus.CounterVec
	alertsFired      *prometheus.CounterVec
	actions          *prometheus.CounterVec
	actionDuration   *prometheus.HistogramVec
	activeCampaigns  prometheus.Gauge
	journalRecords   prometheus.Counter
	quoteLatency     *prometheus.HistogramVec
	feedReconnects   *prometheus.CounterVec
	feedSubscription *prometheus.GaugeVec
}

// NewCollector creates and registers the metric set.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Price ticks routed to campaigns by result",
			},
			[]string{"result"},
		),
		alertsFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_fired_total",
				Help:      "Alerts fired by price type and direction",
			},
			[]string{"price_type", "direction"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Executed actions by type and outcome status",
			},
			[]string{"type", "status"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Action execution duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"type"},
		),
		activeCampaigns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_campaigns",
			Help:      "Number of campaigns currently accepting ticks",
		}),
		journalRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_records_total",
			Help:      "Trigger records appended to the journal",
		}),
		quoteLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "quote_latency_seconds",
				Help:      "Price quote request latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"source"},
		),
		feedReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_reconnects_total",
				Help:      "Price feed reconnect attempts",
			},
			[]string{"feed"},
		),
		feedSubscription: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "feed_subscriptions",
				Help:      "Instruments currently subscribed on a feed",
			},
			[]string{"feed"},
		),
	}

	c.registry.MustRegister(
		c.ticks,
		c.alertsFired,
		c.actions,
		c.actionDuration,
		c.activeCampaigns,
		c.journalRecords,
		c.quoteLatency,
		c.feedReconnects,
		c.feedSubscription,
	)
	return c
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Reset clears all vector metrics.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.ticks.Reset()
	c.alertsFired.Reset()
	c.actions.Reset()
	c.actionDuration.Reset()
	c.quoteLatency.Reset()
	c.feedReconnects.Reset()
	c.feedSubscription.Reset()
	c.activeCampaigns.Set(0)
}
