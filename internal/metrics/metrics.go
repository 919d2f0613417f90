package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for a harvest run on a
// dedicated registry.
type Metrics struct {
	Registry          *prometheus.Registry
	PagesTotal        prometheus.Counter
	OrdersTotal       *prometheus.CounterVec
	ItemsTotal        prometheus.Counter
	RequestDuration   prometheus.Histogram
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	CaptchaChallenges prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harvester_pages_total",
		Help: "Order history list pages fetched.",
	})
	orders := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_orders_total",
			Help: "Orders processed, by detail page kind.",
		},
		[]string{"kind"},
	)
	items := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harvester_items_total",
		Help: "Line items harvested.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvester_request_duration_seconds",
		Help:    "Latency of page fetches.",
		Buckets: prometheus.DefBuckets,
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harvester_retries_total",
		Help: "Retry attempts across fetch, category and asset paths.",
	})
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_errors_total",
			Help: "Errors by classification.",
		},
		[]string{"error_type"},
	)
	captcha := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harvester_captcha_challenges_total",
		Help: "CAPTCHA challenges encountered during sign-in.",
	})

	registry.MustRegister(pages, orders, items, duration, retries, errorsTotal, captcha)

	return &Metrics{
		Registry:          registry,
		PagesTotal:        pages,
		OrdersTotal:       orders,
		ItemsTotal:        items,
		RequestDuration:   duration,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
		CaptchaChallenges: captcha,
	}
}

func (m *Metrics) IncPage() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

func (m *Metrics) IncOrder(kind string) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncItems(n int) {
	if m == nil {
		return
	}
	m.ItemsTotal.Add(float64(n))
}

func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncCaptcha() {
	if m == nil {
		return
	}
	m.CaptchaChallenges.Inc()
}
