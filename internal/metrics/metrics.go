package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "podcast_player"

// Metrics groups the collectors updated by the fetcher and the controller.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchedBytes  prometheus.Counter
	transitions   *prometheus.CounterVec
	staleResults  prometheus.Counter
	stagedHandles prometheus.Gauge
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Episode audio fetches by outcome.",
		}, []string{"outcome"}),
		fetchedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetched_bytes_total",
			Help:      "Bytes of episode audio downloaded.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Playback session state transitions by target status.",
		}, []string{"status"}),
		staleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_fetch_results_total",
			Help:      "Fetch results dropped because their session was superseded.",
		}),
		stagedHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staged_files",
			Help:      "Staged audio files currently held.",
		}),
	}

	m.registry.MustRegister(
		m.fetches,
		m.fetchedBytes,
		m.transitions,
		m.staleResults,
		m.stagedHandles,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FetchCompleted records a successful download of n bytes.
func (m *Metrics) FetchCompleted(n int) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues("completed").Inc()
	m.fetchedBytes.Add(float64(n))
}

// FetchFailed records a failed download.
func (m *Metrics) FetchFailed() {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues("failed").Inc()
}

// FetchCancelled records a download abandoned through cancellation.
func (m *Metrics) FetchCancelled() {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues("cancelled").Inc()
}

// Transition records a session entering status.
func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// StaleResult records a dropped fetch notification.
func (m *Metrics) StaleResult() {
	if m == nil {
		return
	}
	m.staleResults.Inc()
}

// SetStaged records the number of staged files currently held.
func (m *Metrics) SetStaged(n int) {
	if m == nil {
		return
	}
	m.stagedHandles.Set(float64(n))
}
