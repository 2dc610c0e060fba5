// Package metrics exposes prometheus counters for the billing ledger and
// stock reservations. A nil *Ledger is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "his"

type Ledger struct {
	reservations  *prometheus.CounterVec
	releases      prometheus.Counter
	itemsPosted   *prometheus.CounterVec
	degradedPosts *prometheus.CounterVec
	completions   prometheus.Counter
}

func New(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_reservations_total",
			Help:      "Stock reservation attempts by result.",
		}, []string{"result"}),
		releases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_releases_total",
			Help:      "Reserved stock returned to inventory.",
		}),
		itemsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_items_posted_total",
			Help:      "Billing items posted by item type.",
		}, []string{"item_type"}),
		degradedPosts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_posts_degraded_total",
			Help:      "Billing posts skipped during consultation completion.",
		}, []string{"item_type"}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consultations_completed_total",
			Help:      "Consultations completed.",
		}),
	}
	reg.MustRegister(m.reservations, m.releases, m.itemsPosted, m.degradedPosts, m.completions)
	return m
}

func (m *Ledger) StockReserved(ok bool) {
	if m == nil {
		return
	}
	result := "reserved"
	if !ok {
		result = "rejected"
	}
	m.reservations.WithLabelValues(result).Inc()
}

func (m *Ledger) StockReleased() {
	if m == nil {
		return
	}
	m.releases.Inc()
}

func (m *Ledger) ItemPosted(itemType string) {
	if m == nil {
		return
	}
	m.itemsPosted.WithLabelValues(itemType).Inc()
}

func (m *Ledger) PostDegraded(itemType string) {
	if m == nil {
		return
	}
	m.degradedPosts.WithLabelValues(itemType).Inc()
}

func (m *Ledger) ConsultationCompleted() {
	if m == nil {
		return
	}
	m.completions.Inc()
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
