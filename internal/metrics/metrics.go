// Package metrics exposes the daemon's operational Prometheus metrics:
// flows admitted/active, commands processed per tag, and reports
// emitted/dropped. It is grounded on the teacher's internal/metrics
// collector (prometheus.Counter/CounterVec/Gauge registered once, served
// via promhttp), narrowed from the teacher's generic request/byte
// counters to the counters spec.md's ambient-stack expansion (E3) names:
// flows_admitted_total, flows_active, commands_processed_total{command},
// reports_dropped_total, reports_emitted_total{kind}.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/flowgrind/flowgrind/daemon"
)

// DaemonMetrics implements daemon.SchedulerMetrics with Prometheus
// counters/gauges, registered against its own Registry so tests can create
// more than one instance without tripping prometheus's global-registry
// duplicate-registration panic.
type DaemonMetrics struct {
	registry *prometheus.Registry

	flowsAdmitted  prometheus.Counter
	flowsActive    prometheus.Gauge
	commands       *prometheus.CounterVec
	reportsDropped prometheus.Counter
	reportsEmitted *prometheus.CounterVec
}

var commandNames = map[daemon.CommandTag]string{
	daemon.CmdAddDestination: "add_destination",
	daemon.CmdAddSource:      "add_source",
	daemon.CmdStartFlows:     "start_flows",
	daemon.CmdStopFlow:       "stop_flow",
	daemon.CmdGetStatus:      "get_status",
	daemon.CmdGetVersion:     "get_version",
}

// New creates a DaemonMetrics with its own Prometheus registry.
func New() *DaemonMetrics {
	reg := prometheus.NewRegistry()
	m := &DaemonMetrics{
		registry: reg,
		flowsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowgrind_flows_admitted_total",
			Help: "Total flows admitted via AddSource/AddDestination.",
		}),
		flowsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowgrind_flows_active",
			Help: "Flows currently held by the event loop.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowgrind_commands_processed_total",
			Help: "Commands processed by the event loop, by command name.",
		}, []string{"command"}),
		reportsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowgrind_reports_dropped_total",
			Help: "Interval reports dropped due to report-queue backpressure.",
		}),
		reportsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowgrind_reports_emitted_total",
			Help: "Reports emitted, by kind (interval/final).",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.flowsAdmitted, m.flowsActive, m.commands, m.reportsDropped, m.reportsEmitted)
	return m
}

// FlowAdmitted implements daemon.SchedulerMetrics.
func (m *DaemonMetrics) FlowAdmitted() {
	m.flowsAdmitted.Inc()
	m.flowsActive.Inc()
}

// FlowDestroyed implements daemon.SchedulerMetrics.
func (m *DaemonMetrics) FlowDestroyed() {
	m.flowsActive.Dec()
}

// CommandProcessed implements daemon.SchedulerMetrics.
func (m *DaemonMetrics) CommandProcessed(tag daemon.CommandTag) {
	name, ok := commandNames[tag]
	if !ok {
		name = "unknown"
	}
	m.commands.WithLabelValues(name).Inc()
}

// ReportEmitted implements daemon.SchedulerMetrics.
func (m *DaemonMetrics) ReportEmitted(kind daemon.ReportKind) {
	label := "interval"
	if kind == daemon.ReportFinal {
		label = "final"
	}
	m.reportsEmitted.WithLabelValues(label).Inc()
}

// ReportDropped implements daemon.SchedulerMetrics.
func (m *DaemonMetrics) ReportDropped() {
	m.reportsDropped.Inc()
}

// Serve starts a background HTTP server exposing /metrics on addr (e.g.
// ":9090"), matching the teacher's StartMetricsServer shape. Errors other
// than a graceful shutdown are logged, not returned, since metrics
// exposition is never allowed to take the daemon down.
func (m *DaemonMetrics) Serve(addr string, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Errorf("metrics server: %v", err)
			}
		}
	}()
}
