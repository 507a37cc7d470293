package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// emailsTotal counts per-recipient delivery outcomes.
	// Labels:
	// - transport: "ses", "mailgun", "sparkpost", "log"
	// - status:    "sent" or "failed"
	emailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "massmail",
			Subsystem: "send",
			Name:      "emails_total",
			Help:      "Per-recipient delivery outcomes.",
		},
		[]string{"transport", "status"},
	)

	// chunksTotal counts processed chunk steps.
	// Labels:
	// - result: "merged", "duplicate", "error"
	chunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "massmail",
			Subsystem: "job",
			Name:      "chunks_total",
			Help:      "Chunk steps processed by result.",
		},
		[]string{"result"},
	)

	chunkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "massmail",
			Subsystem: "job",
			Name:      "chunk_duration_seconds",
			Help:      "Time spent sending one chunk.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	jobsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "massmail",
			Subsystem: "job",
			Name:      "started_total",
			Help:      "Bulk send jobs accepted.",
		},
	)

	// jobsFinished counts jobs reaching a terminal state.
	// Labels:
	// - status: "idle", "report_ready", "job_failed"
	jobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "massmail",
			Subsystem: "job",
			Name:      "finished_total",
			Help:      "Bulk send jobs finished by terminal status.",
		},
		[]string{"status"},
	)

	reportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "massmail",
			Subsystem: "report",
			Name:      "generated_total",
			Help:      "Failure report generation attempts by result.",
		},
		[]string{"result"},
	)

	// reportDownloads counts retrieval requests.
	// Labels:
	// - outcome: "ok", "not_found" or "error"
	reportDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "massmail",
			Subsystem: "report",
			Name:      "downloads_total",
			Help:      "Failure report download requests by outcome.",
		},
		[]string{"outcome"},
	)
)

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// IncEmail records one delivery outcome.
func IncEmail(transport, status string) {
	emailsTotal.WithLabelValues(orUnknown(transport), orUnknown(status)).Inc()
}

// IncChunk records one chunk step result.
func IncChunk(result string) {
	chunksTotal.WithLabelValues(orUnknown(result)).Inc()
}

// ObserveChunkDuration records how long a chunk took, in seconds.
func ObserveChunkDuration(seconds float64) {
	chunkDuration.Observe(seconds)
}

// IncJobStarted records an accepted job.
func IncJobStarted() { jobsStarted.Inc() }

// IncJobFinished records a job reaching a terminal status.
func IncJobFinished(status string) {
	jobsFinished.WithLabelValues(orUnknown(status)).Inc()
}

// IncReportGenerated records a report generation attempt ("ok" or "error").
func IncReportGenerated(result string) {
	reportsGenerated.WithLabelValues(orUnknown(result)).Inc()
}

// IncReportDownload records a report retrieval outcome.
func IncReportDownload(outcome string) {
	reportDownloads.WithLabelValues(orUnknown(outcome)).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }
