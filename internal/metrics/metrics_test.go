package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewSyncMetricsRegistersAllCounters(t *testing.T) {
	m := NewSyncMetrics()

	m.ModelSyncsSent.Inc()
	m.ModelSyncFailures.Add(2)
	m.FilesUploaded.Inc()
	m.FileUploadFailures.Inc()
	m.RecordsApplied.Add(3)
	m.FilesDownloaded.Inc()
	m.FileDownloadFailures.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("metrics handler status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"turtlcore_sync_model_syncs_sent_total 1",
		"turtlcore_sync_model_sync_failures_total 2",
		"turtlcore_sync_files_uploaded_total 1",
		"turtlcore_sync_file_upload_failures_total 1",
		"turtlcore_sync_records_applied_total 3",
		"turtlcore_sync_files_downloaded_total 1",
		"turtlcore_sync_file_download_failures_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q:\n%s", want, body)
		}
	}
}
