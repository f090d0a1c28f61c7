package sync

import (
	"context"
	"time"

	"turtlcore/internal/metrics"
	"turtlcore/internal/turtlerr"
)

// FilesIncoming is the dedicated file-incoming worker (spec.md §4.9 /
// §5's "file incoming thread"): drains the file-download queue Incoming
// feeds, fetches each attachment's URL, streams its bytes into the local
// file layout, and deletes the record on success.
type FilesIncoming struct {
	queue  *Queue
	client Client
	files  *FileStore
	userID string

	Interval time.Duration

	// Metrics, if set, records counters for this worker's activity.
	Metrics *metrics.SyncMetrics

	// Events, if set, receives sync:file:downloaded (spec.md §6).
	Events EventSink
}

// NewFilesIncoming builds a file-incoming worker. userID scopes the same
// on-disk file layout the outgoing side writes ({data_folder}/files/
// {user_id}/{note_id}).
func NewFilesIncoming(queue *Queue, client Client, files *FileStore, userID string) *FilesIncoming {
	return &FilesIncoming{
		queue:    queue,
		client:   client,
		files:    files,
		userID:   userID,
		Interval: time.Second,
	}
}

// Run ticks RunOnce on Interval until ctx is cancelled.
func (w *FilesIncoming) Run(ctx context.Context) {
	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := w.RunOnce(ctx); err != nil {
				pkgLogger.WithError(err).Warn("sync.FilesIncoming: tick failed")
			}
		}
	}
}

// RunOnce processes every pending file-download record once.
func (w *FilesIncoming) RunOnce(ctx context.Context) error {
	pending, err := w.queue.Pending(ctx)
	if err != nil {
		return turtlerr.Wrap(err, "sync.FilesIncoming.RunOnce: loading pending records")
	}
	for _, rec := range pending {
		if err := w.download(ctx, rec); err != nil {
			pkgLogger.WithError(err).WithField("item_id", rec.ItemID).Warn("sync.FilesIncoming: download failed")
		}
	}
	return nil
}

// download fetches one note's attachment URL, streams it into the file
// layout via a temp-file-then-rename so a partial download is discarded
// (FileStore.WriteStream), and drops the record only once the write
// succeeds. Failures go through the same retry/freeze policy as the
// outgoing queue (spec.md §4.6).
func (w *FilesIncoming) download(ctx context.Context, rec *Record) error {
	url, err := w.client.AttachmentURL(ctx, rec.ItemID)
	if err != nil {
		return w.fail(ctx, rec, turtlerr.Wrap(err, "sync.FilesIncoming.download: fetching attachment url"))
	}

	body, err := w.client.StreamAttachment(ctx, url)
	if err != nil {
		return w.fail(ctx, rec, turtlerr.Wrap(err, "sync.FilesIncoming.download: streaming attachment"))
	}
	defer body.Close()

	if err := w.files.WriteStream(w.userID, rec.ItemID, body); err != nil {
		return w.fail(ctx, rec, turtlerr.Wrap(err, "sync.FilesIncoming.download: writing file"))
	}

	if w.Metrics != nil {
		w.Metrics.FilesDownloaded.Inc()
	}
	if w.Events != nil {
		w.Events.Emit("sync:file:downloaded", rec.ItemID)
	}
	return w.queue.Delete(ctx, rec.ID)
}

func (w *FilesIncoming) fail(ctx context.Context, rec *Record, origErr error) error {
	if err := w.queue.HandleFailure(ctx, rec.ID); err != nil {
		pkgLogger.WithError(err).Warn("sync.FilesIncoming.download: handle_failed_sync failed")
	}
	if w.Metrics != nil {
		w.Metrics.FileDownloadFailures.Inc()
	}
	return origErr
}
