package metrics

import (
	"net/http"

	"github.com/agile-platform/backend/internal/app/pool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agile"

// PoolCollector exposes the monitor snapshot at scrape time.
type PoolCollector struct {
	source pool.Snapshotter

	total       *prometheus.Desc
	idle        *prometheus.Desc
	waiting     *prometheus.Desc
	established *prometheus.Desc
	errors      *prometheus.Desc
	coolingDown *prometheus.Desc
}

func NewPoolCollector(source pool.Snapshotter) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", name), help, nil, nil)
	}
	return &PoolCollector{
		source:      source,
		total:       desc("connections_total", "Connections currently opened by the pool."),
		idle:        desc("connections_idle", "Open connections not in use."),
		waiting:     desc("waiting_requests", "Acquisitions waiting for a free connection."),
		established: desc("established", "Connections checked out minus connections returned."),
		errors:      desc("errors", "Pool errors since the last decay."),
		coolingDown: desc("cooling_down", "1 while an exhaustion cooldown window is open."),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.idle
	ch <- c.waiting
	ch <- c.established
	ch <- c.errors
	ch <- c.coolingDown
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.source.Snapshot()
	cooling := 0.0
	if m.CoolingDown {
		cooling = 1
	}
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(m.TotalConnections))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(m.IdleConnections))
	ch <- prometheus.MustNewConstMetric(c.waiting, prometheus.GaugeValue, float64(m.WaitingRequests))
	ch <- prometheus.MustNewConstMetric(c.established, prometheus.GaugeValue, float64(m.EstablishedCount))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.GaugeValue, float64(m.ErrorCount))
	ch <- prometheus.MustNewConstMetric(c.coolingDown, prometheus.GaugeValue, cooling)
}

// Registry holds the application collectors. The process-wide default
// registry, which carries the Go runtime and gRPC metrics, is served beside it.
type Registry struct {
	reg       *prometheus.Registry
	decisions *prometheus.CounterVec
}

func NewRegistry(source pool.Snapshotter) *Registry {
	reg := prometheus.NewRegistry()
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "admission",
		Name:      "decisions_total",
		Help:      "Admission guard decisions by outcome.",
	}, []string{"decision"})

	reg.MustRegister(NewPoolCollector(source), decisions)
	return &Registry{reg: reg, decisions: decisions}
}

// ObserveDecision counts one admission decision.
func (r *Registry) ObserveDecision(d pool.Decision) {
	r.decisions.WithLabelValues(d.String()).Inc()
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, r.reg},
		promhttp.HandlerOpts{},
	)
}
