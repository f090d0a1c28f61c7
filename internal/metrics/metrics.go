// Package metrics exposes the sync workers' Prometheus counters (spec.md
// §1's ambient "sync worker counters" concern), grounded on the teacher's
// own HealthLogger: a private registry, plain counters, and a
// handler the host process mounts wherever it serves diagnostics from.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncMetrics tracks outgoing/incoming/file-transfer worker activity. Every
// field is a plain Prometheus counter; callers increment them directly
// rather than going through wrapper methods, matching how the teacher's
// HealthLogger exposes its gauges as struct fields for RecordMetrics to
// set.
type SyncMetrics struct {
	registry *prometheus.Registry

	ModelSyncsSent       prometheus.Counter
	ModelSyncFailures    prometheus.Counter
	FilesUploaded        prometheus.Counter
	FileUploadFailures   prometheus.Counter
	RecordsApplied       prometheus.Counter
	FilesDownloaded      prometheus.Counter
	FileDownloadFailures prometheus.Counter
}

// NewSyncMetrics builds a SyncMetrics with its own registry, so embedding
// it in a process never collides with that process's default registry.
func NewSyncMetrics() *SyncMetrics {
	reg := prometheus.NewRegistry()
	m := &SyncMetrics{
		registry: reg,
		ModelSyncsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turtlcore_sync_model_syncs_sent_total",
			Help: "Total model-sync records successfully sent to the server.",
		}),
		ModelSyncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turtlcore_sync_model_sync_failures_total",
			Help: "Total model-sync records the server rejected.",
		}),
		FilesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turtlcore_sync_files_uploaded_total",
			Help: "Total file-add records successfully uploaded.",
		}),
		FileUploadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turtlcore_sync_file_upload_failures_total",
			Help: "Total file-add uploads that failed (excluding 404-as-deleted).",
		}),
		RecordsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turtlcore_sync_records_applied_total",
			Help: "Total incoming sync records applied to the local store.",
		}),
		FilesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turtlcore_sync_files_downloaded_total",
			Help: "Total file:incoming attachments successfully downloaded.",
		}),
		FileDownloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turtlcore_sync_file_download_failures_total",
			Help: "Total file:incoming downloads that failed and were retried.",
		}),
	}
	reg.MustRegister(
		m.ModelSyncsSent,
		m.ModelSyncFailures,
		m.FilesUploaded,
		m.FileUploadFailures,
		m.RecordsApplied,
		m.FilesDownloaded,
		m.FileDownloadFailures,
	)
	return m
}

// Handler exposes the registry in the standard Prometheus text format.
func (m *SyncMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
