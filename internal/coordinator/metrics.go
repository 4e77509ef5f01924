package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors shared by all coordinators of a
// process. A nil *Metrics records nothing.
type Metrics struct {
	fetches          *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	lastSuccess      *prometheus.GaugeVec
	listeners        *prometheus.GaugeVec
	listenerFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ndbc",
			Name:      "fetches_total",
			Help:      "Observation fetches by station and result.",
		}, []string{"station", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ndbc",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of observation fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"station"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ndbc",
			Name:      "last_update_success",
			Help:      "1 if the most recent fetch for the station succeeded.",
		}, []string{"station"}),
		listeners: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ndbc",
			Name:      "listeners",
			Help:      "Registered listeners per station.",
		}, []string{"station"}),
		listenerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ndbc",
			Name:      "listener_failures_total",
			Help:      "Listener invocations that returned an error or panicked.",
		}, []string{"station"}),
	}

	reg.MustRegister(m.fetches, m.fetchDuration, m.lastSuccess, m.listeners, m.listenerFailures)
	return m
}

func (m *Metrics) observeFetch(station string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.fetches.WithLabelValues(station, result).Inc()
	m.fetchDuration.WithLabelValues(station).Observe(d.Seconds())
}

func (m *Metrics) setSuccess(station string, ok bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	m.lastSuccess.WithLabelValues(station).Set(v)
}

func (m *Metrics) setListeners(station string, n int) {
	if m == nil {
		return
	}
	m.listeners.WithLabelValues(station).Set(float64(n))
}

func (m *Metrics) listenerFailed(station string) {
	if m == nil {
		return
	}
	m.listenerFailures.WithLabelValues(station).Inc()
}

// forget drops the per-station series once a coordinator is gone.
func (m *Metrics) forget(station string) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"station": station}
	m.fetches.DeletePartialMatch(labels)
	m.fetchDuration.DeletePartialMatch(labels)
	m.lastSuccess.DeletePartialMatch(labels)
	m.listeners.DeletePartialMatch(labels)
	m.listenerFailures.DeletePartialMatch(labels)
}
