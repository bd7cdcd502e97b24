package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// DetectionsTotal counts detection passes by provider and outcome
	// (ok, fallback, rejected).
	DetectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecowing",
		Subsystem: "detect",
		Name:      "detections_total",
		Help:      "Total number of waste detections, labeled by provider and outcome.",
	}, []string{"source", "outcome"})

	// DetectionDurationSeconds is provider latency including parsing.
	DetectionDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ecowing",
		Subsystem: "detect",
		Name:      "duration_seconds",
		Help:      "Time spent waiting for the detection provider.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"source"})

	FallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecowing",
		Subsystem: "detect",
		Name:      "fallbacks_total",
		Help:      "Total number of detections answered by the backup-mode detector.",
	})

	ReportsStoredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecowing",
		Subsystem: "reports",
		Name:      "stored_total",
		Help:      "Total number of reports written to the database.",
	})

	// WebsocketClients is the number of connected map clients.
	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecowing",
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Current number of websocket clients.",
	})

	// GeocodeCacheLookups counts reverse geocode cache lookups by result (hit, miss).
	GeocodeCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecowing",
		Subsystem: "geocode",
		Name:      "cache_lookups_total",
		Help:      "Reverse geocode cache lookups, labeled by result.",
	}, []string{"result"})

	// LastSnapshotSeconds is a unix timestamp (seconds) of the last site snapshot broadcast.
	LastSnapshotSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecowing",
		Subsystem: "jobs",
		Name:      "last_snapshot_timestamp_seconds",
		Help:      "Unix timestamp (seconds) of the last top-sites snapshot broadcast.",
	})
)

// Register registers EcoWing metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			DetectionsTotal,
			DetectionDurationSeconds,
			FallbacksTotal,
			ReportsStoredTotal,
			WebsocketClients,
			GeocodeCacheLookups,
			LastSnapshotSeconds,
		)
	})
}

func NowUnixSeconds() float64 {
	return float64(time.Now().Unix())
}
