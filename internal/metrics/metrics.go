package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NodeMetrics holds the Prometheus metrics for node supervision.
// A nil *NodeMetrics is valid and records nothing.
type NodeMetrics struct {
	ProcessStarts   *prometheus.CounterVec
	ProcessStops    *prometheus.CounterVec
	HealthProbes    *prometheus.CounterVec
	StartupSeconds  prometheus.Histogram
	PortAllocations *prometheus.CounterVec
	RPCLatency      *prometheus.HistogramVec
	VMErrors        *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
}

// NewNodeMetrics creates and registers all node metrics
func NewNodeMetrics(reg prometheus.Registerer) *NodeMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &NodeMetrics{
		ProcessStarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hardhat_process_starts_total",
				Help: "Node process launches by outcome",
			},
			[]string{"result"},
		),

		ProcessStops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hardhat_process_stops_total",
				Help: "Node process shutdowns by how the process ended",
			},
			[]string{"mode"},
		),

		HealthProbes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hardhat_health_probes_total",
				Help: "Health probes by outcome",
			},
			[]string{"result"},
		),

		StartupSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hardhat_startup_seconds",
				Help:    "Time from spawn until the node answered RPC",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
		),

		PortAllocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hardhat_port_allocations_total",
				Help: "Endpoint resolutions by kind",
			},
			[]string{"kind"},
		),

		RPCLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hardhat_rpc_latency_seconds",
				Help:    "RPC call latency by method",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "status"},
		),

		VMErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hardhat_vm_errors_total",
				Help: "Classified VM errors by kind",
			},
			[]string{"kind"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hardhat_active_sessions",
				Help: "Connected provider sessions",
			},
		),
	}
}

// RecordStart records a process launch attempt
func (m *NodeMetrics) RecordStart(ok bool, took time.Duration) {
	if m == nil {
		return
	}
	if !ok {
		m.ProcessStarts.WithLabelValues("failed").Inc()
		return
	}
	m.ProcessStarts.WithLabelValues("ok").Inc()
	m.StartupSeconds.Observe(took.Seconds())
}

// RecordStop records a shutdown; mode is "graceful", "killed" or "exited"
func (m *NodeMetrics) RecordStop(mode string) {
	if m == nil {
		return
	}
	m.ProcessStops.WithLabelValues(mode).Inc()
}

// RecordProbe records a health probe outcome
func (m *NodeMetrics) RecordProbe(ok bool) {
	if m == nil {
		return
	}
	m.HealthProbes.WithLabelValues(result(ok)).Inc()
}

// RecordPort records an endpoint resolution; kind is "auto", "explicit" or "remote"
func (m *NodeMetrics) RecordPort(kind string) {
	if m == nil {
		return
	}
	m.PortAllocations.WithLabelValues(kind).Inc()
}

// RecordRPC records the latency of one RPC call
func (m *NodeMetrics) RecordRPC(method string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.RPCLatency.WithLabelValues(method, result(err == nil)).Observe(took.Seconds())
}

// RecordVMError records a classified VM error
func (m *NodeMetrics) RecordVMError(kind string) {
	if m == nil {
		return
	}
	m.VMErrors.WithLabelValues(kind).Inc()
}

// SessionOpened increments the active session gauge
func (m *NodeMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active session gauge
func (m *NodeMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
