package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bookstore"

// Metrics holds the store's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	BooksAdded           *prometheus.CounterVec
	Purchases            *prometheus.CounterVec
	UnitsSold            *prometheus.CounterVec
	RevenueCents         prometheus.Counter
	PurchaseRejections   *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
}

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BooksAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "books_added_total",
			Help:      "Books added to the catalog.",
		}, []string{"kind"}),
		Purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Completed purchases.",
		}, []string{"kind"}),
		UnitsSold: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_sold_total",
			Help:      "Copies sold.",
		}, []string{"kind"}),
		RevenueCents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_cents_total",
			Help:      "Revenue in the smallest currency unit.",
		}),
		PurchaseRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_rejections_total",
			Help:      "Purchases refused, by reason.",
		}, []string{"reason"}),
		NotificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Collaborator calls that failed after the sale went through.",
		}, []string{"channel"}),
	}

	m.registry.MustRegister(
		m.BooksAdded,
		m.Purchases,
		m.UnitsSold,
		m.RevenueCents,
		m.PurchaseRejections,
		m.NotificationFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
