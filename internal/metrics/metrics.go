package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for registrations, dispatch and menu refreshes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Binding attempts by kind and outcome ("ok", "error")
	BindingAttempts *prometheus.CounterVec

	// Sends by kind and outcome
	Sends *prometheus.CounterVec

	DispatchDuration prometheus.Histogram

	// Snapshot flushes by outcome
	Flushes *prometheus.CounterVec

	// Menu refreshes by outcome
	MenuRefreshes *prometheus.CounterVec

	Subscribers prometheus.Gauge
}

// New registers every metric with reg. Pass prometheus.DefaultRegisterer in production
// and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BindingAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lunchbell_binding_attempts_total",
			Help: "Channel binding create attempts by kind and outcome",
		}, []string{"kind", "outcome"}),

		Sends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lunchbell_sends_total",
			Help: "Notification sends by kind and outcome",
		}, []string{"kind", "outcome"}),

		DispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lunchbell_dispatch_duration_seconds",
			Help:    "Duration of a full dispatch fan-out",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		Flushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lunchbell_snapshot_flushes_total",
			Help: "Registry snapshot flushes by outcome",
		}, []string{"outcome"}),

		MenuRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lunchbell_menu_refreshes_total",
			Help: "Menu refreshes by outcome",
		}, []string{"outcome"}),

		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "lunchbell_subscribers",
			Help: "Number of identities in the registry",
		}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveBinding(kind string, err error) {
	if m != nil {
		m.BindingAttempts.WithLabelValues(kind, outcome(err)).Inc()
	}
}

func (m *Metrics) ObserveSend(kind string, err error) {
	if m != nil {
		m.Sends.WithLabelValues(kind, outcome(err)).Inc()
	}
}

func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m != nil {
		m.DispatchDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveFlush(err error) {
	if m != nil {
		m.Flushes.WithLabelValues(outcome(err)).Inc()
	}
}

func (m *Metrics) ObserveMenuRefresh(err error) {
	if m != nil {
		m.MenuRefreshes.WithLabelValues(outcome(err)).Inc()
	}
}

func (m *Metrics) SetSubscribers(n int) {
	if m != nil {
		m.Subscribers.Set(float64(n))
	}
}
