package render

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts browser sessions and navigations. A nil *Metrics records
// nothing.
type Metrics struct {
	SessionsOpened     *prometheus.CounterVec
	SessionsClosed     *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
	NavigationSeconds  *prometheus.HistogramVec
	NavigationFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "news_bot",
			Subsystem: "render",
			Name:      "sessions_opened_total",
			Help:      "Browser sessions launched.",
		}, []string{"engine"}),
		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "news_bot",
			Subsystem: "render",
			Name:      "sessions_closed_total",
			Help:      "Browser sessions terminated.",
		}, []string{"engine"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "news_bot",
			Subsystem: "render",
			Name:      "active_sessions",
			Help:      "Browser sessions currently alive.",
		}),
		NavigationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "news_bot",
			Subsystem: "render",
			Name:      "navigation_seconds",
			Help:      "Time from navigation start to DOM snapshot.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 12, 20, 30},
		}, []string{"engine"}),
		NavigationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "news_bot",
			Subsystem: "render",
			Name:      "navigation_failures_total",
			Help:      "Failed navigations by kind.",
		}, []string{"engine", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.SessionsOpened, m.SessionsClosed, m.ActiveSessions, m.NavigationSeconds, m.NavigationFailures)
	}
	return m
}

func (m *Metrics) RecordSessionOpened(engine Engine) {
	if m == nil {
		return
	}
	m.SessionsOpened.WithLabelValues(string(engine)).Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) RecordSessionClosed(engine Engine) {
	if m == nil {
		return
	}
	m.SessionsClosed.WithLabelValues(string(engine)).Inc()
	m.ActiveSessions.Dec()
}

func (m *Metrics) RecordNavigation(engine Engine, latency time.Duration) {
	if m == nil {
		return
	}
	m.NavigationSeconds.WithLabelValues(string(engine)).Observe(latency.Seconds())
}

func (m *Metrics) RecordNavigationFailure(engine Engine, kind string) {
	if m == nil {
		return
	}
	m.NavigationFailures.WithLabelValues(string(engine), kind).Inc()
}
