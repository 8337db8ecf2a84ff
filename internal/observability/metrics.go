package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Latency window stage names.
const (
	StageReply       = "submit_to_reply"
	StageFailure     = "submit_to_failure"
	StageStaleResult = "submit_to_stale"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec
	WSMessages      *prometheus.CounterVec
	OutboundResults *prometheus.CounterVec
	ArchiveErrors   prometheus.Counter
	Turns           *prometheus.CounterVec
	SubmitOutcomes  *prometheus.CounterVec
	TransportErrors *prometheus.CounterVec
	ReplyLatency    prometheus.Histogram

	stages *LatencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active chat sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		OutboundResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound websocket envelopes by type and delivery result.",
		}, []string{"type", "result"}),
		ArchiveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_errors_total",
			Help:      "Turns that could not be archived.",
		}),
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Transcript turns by role and origin.",
		}, []string{"role", "origin"}),
		SubmitOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_outcomes_total",
			Help:      "Submit calls by outcome.",
		}, []string{"outcome"}),
		TransportErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Chat transport failures by code.",
		}, []string{"code"}),
		ReplyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_latency_ms",
			Help:      "Chat transport round trip in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
		}),
		stages: NewLatencyWindow(512),
	}
}

func (m *Metrics) ObserveReplyLatency(d time.Duration) {
	m.ReplyLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveOutboundMessage(msgType, result string) {
	if msgType == "" {
		msgType = "unknown"
	}
	m.OutboundResults.WithLabelValues(msgType, result).Inc()
}

func (m *Metrics) ObserveTurn(role string, synthetic bool) {
	origin := "transport"
	if synthetic {
		origin = "failure_notice"
	} else if role == "user" {
		origin = "input"
	}
	m.Turns.WithLabelValues(role, origin).Inc()
}

func (m *Metrics) ObserveTransportError(code string) {
	if code == "" {
		code = "unknown"
	}
	m.TransportErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveSubmitOutcome(outcome string) {
	m.SubmitOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, d)
}

func (m *Metrics) ObserveTurnIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.Count(name)
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m == nil {
		return (*LatencyWindow)(nil).Snapshot()
	}
	return m.stages.Snapshot()
}

func (m *Metrics) ResetTurnStages() {
	if m == nil {
		return
	}
	m.stages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
