package sync

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"turtlcore/internal/metrics"
	"turtlcore/internal/turtlerr"
)

// Outgoing is the dedicated outgoing-sync worker (spec.md §4.7): drains the
// non-frozen queue, batches model-syncs to the server, and moves file-add
// records to a one-at-a-time upload queue.
type Outgoing struct {
	queue    *Queue
	ignore   *IgnoreSet
	client   Client
	files    *FileStore
	userID   string
	Interval time.Duration

	// EnableFiles gates the file-add upload half of a pass (spec.md §6's
	// sync.enable_files_outgoing); model syncs still run when false.
	EnableFiles bool

	// Metrics, if set, records counters for this worker's activity.
	Metrics *metrics.SyncMetrics

	// Events, if set, receives sync:file:uploaded and sync:outgoing:failure
	// (spec.md §6's messaging channel events). Left nil, no events fire.
	Events EventSink
}

// NewOutgoing builds an outgoing-sync worker. userID scopes the on-disk
// file layout (spec.md §4.9: "{data_folder}/files/{user_id}/{note_id}").
func NewOutgoing(queue *Queue, ignore *IgnoreSet, client Client, files *FileStore, userID string) *Outgoing {
	return &Outgoing{
		queue:       queue,
		ignore:      ignore,
		client:      client,
		files:       files,
		userID:      userID,
		Interval:    time.Second, // matches the reference's get_delay() == 1000ms
		EnableFiles: true,
	}
}

// Run ticks RunOnce on Interval until ctx is cancelled — the "shutdown
// flag checked at suspension boundaries" of spec.md §5, realized as
// context cancellation.
func (o *Outgoing) Run(ctx context.Context) {
	t := time.NewTicker(o.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := o.RunOnce(ctx); err != nil {
				pkgLogger.WithError(err).Warn("sync.Outgoing: tick failed")
			}
		}
	}
}

// RunOnce performs a single outgoing-sync pass.
func (o *Outgoing) RunOnce(ctx context.Context) error {
	pending, err := o.queue.Pending(ctx)
	if err != nil {
		return turtlerr.Wrap(err, "sync.Outgoing.RunOnce: loading pending records")
	}
	if len(pending) == 0 {
		return nil
	}

	var modelSyncs, fileAdds []*Record
	for _, r := range pending {
		if r.IsFileAdd() {
			fileAdds = append(fileAdds, r)
		} else {
			modelSyncs = append(modelSyncs, r)
		}
	}

	if len(modelSyncs) > 0 {
		if err := o.sendModelSyncs(ctx, modelSyncs); err != nil {
			return err
		}
	}
	if o.EnableFiles {
		for _, r := range fileAdds {
			if err := o.uploadFile(ctx, r); err != nil {
				pkgLogger.WithError(err).WithField("item_id", r.ItemID).Warn("sync.Outgoing: file upload failed")
			}
		}
	}
	return nil
}

func (o *Outgoing) sendModelSyncs(ctx context.Context, records []*Record) error {
	pkgLogger.WithField("count", len(records)).Info("sync.Outgoing: sending model syncs")
	resp, err := o.client.PostSync(ctx, records)
	if err != nil {
		return turtlerr.Wrap(err, "sync.Outgoing.sendModelSyncs: POST /sync")
	}
	pkgLogger.WithFields(log.Fields{
		"success": len(resp.Success),
		"failure": len(resp.Failures),
	}).Info("sync.Outgoing: server response")

	var firstErr error
	for _, rec := range resp.Success {
		if err := o.queue.Delete(ctx, rec.ID); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := o.ignore.Add(ctx, rec.SyncIDs); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if o.Metrics != nil && len(resp.Success) > 0 {
		o.Metrics.ModelSyncsSent.Add(float64(len(resp.Success)))
	}
	for _, rec := range resp.Failures {
		if err := o.queue.HandleFailure(ctx, rec.ID); err != nil {
			pkgLogger.WithError(err).WithField("id", rec.ID).Warn("sync.Outgoing: handle_failed_sync failed")
		}
	}
	if len(resp.Failures) > 0 {
		if o.Metrics != nil {
			o.Metrics.ModelSyncFailures.Add(float64(len(resp.Failures)))
		}
		// spec.md §4's batching rule: all failures from one outgoing tick
		// are emitted as a single event carrying the full failure slice,
		// not one event per record.
		if o.Events != nil {
			o.Events.Emit("sync:outgoing:failure", resp.Failures)
		}
	}
	return firstErr
}

// uploadFile processes a single file-add record: PUT the ciphertext blob,
// and either drop the record (success, or the owning note was already
// deleted) or hand it to the retry policy.
func (o *Outgoing) uploadFile(ctx context.Context, rec *Record) error {
	blob, err := o.files.Read(o.userID, rec.ItemID)
	if err != nil {
		if turtlerr.IsNotFound(err) {
			// the note (and its file) is gone locally; nothing to upload.
			return o.queue.Delete(ctx, rec.ID)
		}
		return turtlerr.Wrap(err, "sync.Outgoing.uploadFile: reading blob")
	}

	syncIDs, err := o.client.UploadAttachment(ctx, rec.ItemID, blob)
	if err != nil {
		if turtlerr.KindOf(err) == turtlerr.KindAPI {
			if apiErr, ok := err.(*turtlerr.Error); ok && apiErr.Status == 404 {
				// spec.md §4.7: "a 404 is treated as the note was deleted
				// before upload succeeded" — drop the record successfully.
				return o.queue.Delete(ctx, rec.ID)
			}
		}
		if hErr := o.queue.HandleFailure(ctx, rec.ID); hErr != nil {
			pkgLogger.WithError(hErr).Warn("sync.Outgoing.uploadFile: handle_failed_sync failed")
		}
		if o.Metrics != nil {
			o.Metrics.FileUploadFailures.Inc()
		}
		return turtlerr.Wrap(err, "sync.Outgoing.uploadFile: PUT attachment")
	}

	if err := o.ignore.Add(ctx, syncIDs); err != nil {
		pkgLogger.WithError(err).Warn("sync.Outgoing.uploadFile: updating ignore set failed")
	}
	if o.Metrics != nil {
		o.Metrics.FilesUploaded.Inc()
	}
	if o.Events != nil {
		o.Events.Emit("sync:file:uploaded", rec.ItemID)
	}
	return o.queue.Delete(ctx, rec.ID)
}
