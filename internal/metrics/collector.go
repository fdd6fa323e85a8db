// Package metrics exposes Prometheus metrics for audits, ingestion and the
// HTTP API on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rezonia/nfe-auditor/internal/model"
)

const namespace = "nfe_auditor"

// Collector holds the audit metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	invoicesTotal   *prometheus.CounterVec
	findingsTotal   *prometheus.CounterVec
	impactTotal     *prometheus.CounterVec
	auditDuration   prometheus.Histogram
	ingestErrors    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	rulesLoadedInfo *prometheus.GaugeVec
}

// NewCollector creates a collector with its own registry, including the
// Go runtime and process collectors
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		invoicesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoices_audited_total",
				Help:      "Total number of invoices audited",
			},
			[]string{"source", "operation"},
		),
		findingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_total",
				Help:      "Total number of validation findings",
			},
			[]string{"code", "severity"},
		),
		impactTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "financial_impact_brl_total",
				Help:      "Sum of estimated financial impact in BRL",
			},
			[]string{"category"},
		),
		auditDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "audit_duration_seconds",
				Help:      "Time spent validating one invoice",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
		),
		ingestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_errors_total",
				Help:      "Total number of rejected input documents",
			},
			[]string{"format"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		rulesLoadedInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rules_info",
				Help:      "Loaded rule pack version, value is always 1",
			},
			[]string{"version"},
		),
	}
}

// Registry returns the private registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveAudit records one validated invoice
func (c *Collector) ObserveAudit(inv *model.Invoice, elapsed time.Duration) {
	if c == nil {
		return
	}
	source := string(inv.Source)
	if source == "" {
		source = string(model.SourceUnknown)
	}
	c.invoicesTotal.WithLabelValues(source, string(inv.OperationType())).Inc()
	c.auditDuration.Observe(elapsed.Seconds())
	for _, e := range inv.ValidationErrors {
		c.findingsTotal.WithLabelValues(string(e.Code), string(e.Severity)).Inc()
		if e.FinancialImpact.Valid {
			impact, _ := e.Impact().Float64()
			c.impactTotal.WithLabelValues(string(e.Code.Category())).Add(impact)
		}
	}
}

// IngestError records a rejected document
func (c *Collector) IngestError(format string) {
	if c == nil {
		return
	}
	c.ingestErrors.WithLabelValues(format).Inc()
}

// ObserveHTTP records one served request
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// SetRulesVersion publishes the loaded rule pack version
func (c *Collector) SetRulesVersion(version string) {
	if c == nil {
		return
	}
	c.rulesLoadedInfo.Reset()
	c.rulesLoadedInfo.WithLabelValues(version).Set(1)
}

// WriteTextfile writes the registry to path in the text exposition format,
// for the node_exporter textfile collector
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
