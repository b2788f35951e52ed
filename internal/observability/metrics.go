package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resolution outcomes.
const (
	ResolutionApplied = "applied"
	ResolutionStale   = "stale"
	ResolutionFailed  = "failed"
)

var (
	registerOnce sync.Once

	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "composer",
			Subsystem: "editor",
			Name:      "dispatches_total",
			Help:      "Dispatched actions by type and whether they were recorded in history.",
		},
		[]string{"action", "recorded"},
	)
	resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "composer",
			Subsystem: "resolve",
			Name:      "resolutions_total",
			Help:      "Completed field resolutions by outcome.",
		},
		[]string{"outcome"},
	)
	resolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "composer",
			Subsystem: "resolve",
			Name:      "duration_seconds",
			Help:      "Field resolution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	saves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "composer",
			Subsystem: "storage",
			Name:      "saves_total",
			Help:      "Document saves by trigger and success.",
		},
		[]string{"trigger", "success"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "composer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "composer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(dispatches, resolutions, resolutionDuration, saves, httpRequests, httpDuration)
	})
}

func RecordDispatch(action string, recorded bool) {
	RegisterMetrics()
	dispatches.WithLabelValues(action, strconv.FormatBool(recorded)).Inc()
}

func RecordResolution(outcome string, duration time.Duration) {
	RegisterMetrics()
	resolutions.WithLabelValues(outcome).Inc()
	resolutionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordSave(trigger string, success bool) {
	RegisterMetrics()
	saves.WithLabelValues(trigger, strconv.FormatBool(success)).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
