// Package telemetry exposes session activity as Prometheus metrics: fetches
// started, coalesced, failed and discarded per resource kind, notifications
// fired per event, and the dispatcher's in-flight task count.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tonimelisma/ion-go/internal/async"
	"github.com/tonimelisma/ion-go/internal/session"
)

const (
	namespace = "ion_go"
	subsystem = "session"
)

// Collector implements session.Metrics on top of Prometheus counters
// registered in its own registry.
type Collector struct {
	registry *prometheus.Registry

	fetchStarted   *prometheus.CounterVec
	fetchCoalesced *prometheus.CounterVec
	fetchFailed    *prometheus.CounterVec
	discarded      *prometheus.CounterVec
	notifications  *prometheus.CounterVec
}

// NewCollector creates a Collector with a fresh registry that also carries
// the Go runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		fetchStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_started_total",
			Help:      "Remote fetches issued, by resource kind",
		}, []string{"kind"}),
		fetchCoalesced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_coalesced_total",
			Help:      "Refresh requests folded into an in-flight fetch, by resource kind",
		}, []string{"kind"}),
		fetchFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_failed_total",
			Help:      "Remote fetches that completed with an error, by resource kind",
		}, []string{"kind"}),
		discarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "completions_discarded_total",
			Help:      "Completions dropped because the connection changed while in flight",
		}, []string{"kind"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_total",
			Help:      "Notifications fired, by event",
		}, []string{"event"}),
	}
}

func (c *Collector) FetchStarted(kind session.Kind) {
	c.fetchStarted.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) FetchCoalesced(kind session.Kind) {
	c.fetchCoalesced.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) FetchFailed(kind session.Kind) {
	c.fetchFailed.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) CompletionDiscarded(kind session.Kind) {
	c.discarded.WithLabelValues(kind.String()).Inc()
}

// ObserveHub counts every notification the hub fires. The returned
// function removes the subscriptions.
func (c *Collector) ObserveHub(hub *session.Hub) func() {
	subs := make([]session.Subscription, 0, len(hub.All()))

	for _, sig := range hub.All() {
		counter := c.notifications.WithLabelValues(sig.Name())
		subs = append(subs, sig.Subscribe(counter.Inc))
	}

	return func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}
}

// ObserveDispatcher exports the dispatcher's in-flight task count as a gauge.
func (c *Collector) ObserveDispatcher(d *async.Dispatcher) {
	promauto.With(c.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "tasks_in_flight",
		Help:      "Remote calls currently running on dispatcher workers",
	}, func() float64 {
		return float64(d.InFlight())
	})
}

// Registry returns the registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
