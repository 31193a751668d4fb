package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry
	latency  *latencyWindow

	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	Turns            *prometheus.CounterVec
	PhaseTransitions *prometheus.CounterVec
	ModelCalls       *prometheus.CounterVec
	ModelLatency     *prometheus.HistogramVec
	ModelRetries     *prometheus.CounterVec
	Errors           *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
}

// NewMetrics registers every instrument on a registry owned by the returned value,
// so independent instances never collide.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		latency:  newLatencyWindow(256),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of debate sessions currently stored.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Transcript turns appended by persona.",
		}, []string{"persona"}),
		PhaseTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Debate phase transitions.",
		}, []string{"from", "to"}),
		ModelCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model completions by persona and outcome.",
		}, []string{"persona", "outcome"}),
		ModelLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_latency_ms",
			Help:      "Model completion latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}, []string{"persona"}),
		ModelRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_retries_total",
			Help:      "Model call retries by persona.",
		}, []string{"persona"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Operation errors by kind.",
		}, []string{"kind"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

func (m *Metrics) ObserveModelCall(persona, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ModelCalls.WithLabelValues(persona, outcome).Inc()
	m.ModelLatency.WithLabelValues(persona).Observe(float64(d.Milliseconds()))
	m.latency.observe(StageModelCall, float64(d.Microseconds())/1000)
}

// ObserveTurnStage records a latency sample for the /v1/perf/latency window.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.latency.count(name)
}

// LatencyReport summarizes the rolling stage window.
func (m *Metrics) LatencyReport() LatencyReport {
	return m.latency.report()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
