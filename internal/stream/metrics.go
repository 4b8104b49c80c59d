package stream

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes stream health to Prometheus. A nil *Metrics is valid
// and records nothing, so the session never has to check.
type Metrics struct {
	framesTotal  *prometheus.CounterVec
	parseErrors  prometheus.Counter
	reconnects   prometheus.Counter
	connected    prometheus.Gauge
	lastUpdateTS prometheus.Gauge
}

// NewMetrics builds and registers the stream metric set. Pass a dedicated
// registry in tests; nil registers on the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashd_stream_frames_total",
			Help: "Inbound frames by classified kind.",
		}, []string{"kind"}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashd_stream_parse_errors_total",
			Help: "Inbound frames dropped because they failed to parse.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashd_stream_reconnects_total",
			Help: "Reconnect attempts scheduled after a close or error.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashd_stream_connected",
			Help: "1 while the upstream connection is open.",
		}),
		lastUpdateTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashd_stream_last_update_timestamp_seconds",
			Help: "Unix time of the last merged telemetry or notification batch.",
		}),
	}
	reg.MustRegister(m.framesTotal, m.parseErrors, m.reconnects, m.connected, m.lastUpdateTS)
	return m
}

func (m *Metrics) ObserveFrame(kind Kind) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(kind.String()).Inc()
	if kind == KindNotifications || kind == KindCombined || kind == KindLegacy {
		m.lastUpdateTS.SetToCurrentTime()
	}
}

func (m *Metrics) ObserveParseError() {
	if m == nil {
		return
	}
	m.parseErrors.Inc()
}

func (m *Metrics) ObserveReconnectScheduled(time.Duration) {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
