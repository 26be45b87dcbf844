package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	SnapshotReused  = "reused"
	SnapshotStale   = "stale"
	SnapshotInvalid = "invalid"
	SnapshotMiss    = "miss"

	FiscalReloadApplied  = "applied"
	FiscalReloadRejected = "rejected"
)

// Collector owns a private registry so tests and the /metrics endpoint see
// only statpay series. All methods are safe on a nil Collector.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	rateLimited     prometheus.Counter
	calculations    prometheus.Counter
	warnings        *prometheus.CounterVec
	declarations    *prometheus.CounterVec
	snapshots       *prometheus.CounterVec
	fiscalReloads   *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statpay_http_requests_total",
			Help: "HTTP requests by status code.",
		}, []string{"status"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "statpay_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statpay_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
		calculations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statpay_calculations_total",
			Help: "Single-employee payroll calculations.",
		}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statpay_calculation_warnings_total",
			Help: "Warnings raised by payroll calculations.",
		}, []string{"code"}),
		declarations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statpay_declaration_entries_total",
			Help: "Declaration entries by outcome.",
		}, []string{"outcome"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statpay_payslip_snapshots_total",
			Help: "Last-payslip snapshot lookups by result.",
		}, []string{"result"}),
		fiscalReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statpay_fiscal_reloads_total",
			Help: "Fiscal parameter reloads by result.",
		}, []string{"result"}),
	}
	c.registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.rateLimited,
		c.calculations,
		c.warnings,
		c.declarations,
		c.snapshots,
		c.fiscalReloads,
	)
	return c
}

func (c *Collector) Record(status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(strconv.Itoa(status)).Inc()
	c.requestDuration.Observe(duration.Seconds())
	if status == http.StatusTooManyRequests {
		c.rateLimited.Inc()
	}
}

func (c *Collector) ObserveCalculation(warningCodes []string) {
	if c == nil {
		return
	}
	c.calculations.Inc()
	for _, code := range warningCodes {
		c.warnings.WithLabelValues(code).Inc()
	}
}

func (c *Collector) ObserveDeclaration(computed, failed int) {
	if c == nil {
		return
	}
	c.declarations.WithLabelValues("computed").Add(float64(computed))
	c.declarations.WithLabelValues("failed").Add(float64(failed))
}

func (c *Collector) ObserveSnapshot(result string) {
	if c == nil {
		return
	}
	c.snapshots.WithLabelValues(result).Inc()
}

func (c *Collector) ObserveFiscalReload(result string) {
	if c == nil {
		return
	}
	c.fiscalReloads.WithLabelValues(result).Inc()
}

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
