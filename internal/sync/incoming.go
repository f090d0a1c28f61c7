package sync

import (
	"context"
	"strconv"
	"time"

	"turtlcore/internal/metrics"
	"turtlcore/internal/store"
	"turtlcore/internal/turtlerr"
)

const cursorKVKey = "sync:incoming:cursor"

// Applier runs a single incoming record's per-type handler against the
// local store (save/delete in objects+indexes), inside a transaction the
// Incoming worker manages (spec.md §4.8 step 2a). It's implemented by the
// profile layer, which knows how to turn a record's Type into the right
// protected-model deserialize/store call.
type Applier interface {
	Apply(ctx context.Context, rec *Record) error
}

// Dispatcher pushes an applied record onto the in-memory dispatch queue
// for the main thread to run the model's MemorySaver against (spec.md
// §4.8 step 3).
type Dispatcher interface {
	Dispatch(rec *Record)
}

// Incoming is the dedicated incoming-sync worker (spec.md §4.8): long-polls
// the server, filters the ignore set, applies records transactionally, and
// advances a persisted cursor.
type Incoming struct {
	store      *store.Store
	client     Client
	ignore     *IgnoreSet
	applier    Applier
	dispatcher Dispatcher
	files      *Queue

	PollTimeout time.Duration

	// Metrics, if set, records counters for this worker's activity.
	Metrics *metrics.SyncMetrics
}

// NewIncoming builds an incoming-sync worker. files is the file-download
// queue a FilesIncoming worker drains; a file:incoming record (spec.md
// §4.9) carries no model body to apply and is handed off there instead of
// going through applier/dispatcher.
func NewIncoming(s *store.Store, client Client, ignore *IgnoreSet, applier Applier, dispatcher Dispatcher, files *Queue) *Incoming {
	return &Incoming{
		store:       s,
		client:      client,
		ignore:      ignore,
		applier:     applier,
		dispatcher:  dispatcher,
		files:       files,
		PollTimeout: 60 * time.Second,
	}
}

// Run loops RunOnce until ctx is cancelled. Each call to RunOnce blocks the
// worker's own long-poll round trip, not the caller — Run just re-issues
// the next poll immediately after one returns, matching the reference's
// "cooperative" worker that checks shutdown between the blocking API call
// and its transaction.
func (w *Incoming) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := w.RunOnce(ctx); err != nil {
			pkgLogger.WithError(err).Warn("sync.Incoming: pass failed")
		}
	}
}

func (w *Incoming) cursor(ctx context.Context) (int64, bool, error) {
	data, ok, err := w.store.KVGet(ctx, cursorKVKey)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, false, turtlerr.Wrap(err, "sync.Incoming.cursor: parsing stored cursor")
	}
	return n, true, nil
}

func (w *Incoming) saveCursor(ctx context.Context, cursor int64) error {
	return w.store.KVSet(ctx, cursorKVKey, []byte(strconv.FormatInt(cursor, 10)))
}

// RunOnce performs a single incoming-sync pass: one GET /sync (or
// /sync/full on the very first pass), followed by one transactional apply
// of whatever records come back.
func (w *Incoming) RunOnce(ctx context.Context) error {
	cursor, hasCursor, err := w.cursor(ctx)
	if err != nil {
		return turtlerr.Wrap(err, "sync.Incoming.RunOnce: loading cursor")
	}

	var resp *GetSyncResponse
	if !hasCursor {
		// spec.md §4.8 step 4: "the very first incoming sync when no
		// cursor exists calls /sync/full and treats the response as if
		// every record were new."
		resp, err = w.client.GetSyncFull(ctx)
	} else {
		resp, err = w.client.GetSync(ctx, cursor, true)
	}
	if err != nil {
		if turtlerr.KindOf(err) == turtlerr.KindTryAgain {
			// long-poll timeout: no-op, keep cursor, try again next pass.
			return nil
		}
		return turtlerr.Wrap(err, "sync.Incoming.RunOnce: fetching sync records")
	}

	select {
	case <-ctx.Done():
		return nil
	default:
	}

	records, err := w.ignore.FilterOut(ctx, resp.Records)
	if err != nil {
		return turtlerr.Wrap(err, "sync.Incoming.RunOnce: filtering ignore set")
	}

	var applied []*Record
	for _, rec := range records {
		if rec.Type == TypeFileIncoming {
			if err := w.enqueueFileDownload(ctx, rec); err != nil {
				pkgLogger.WithError(err).WithField("item_id", rec.ItemID).Warn("sync.Incoming: enqueueing file download failed")
			}
			continue
		}
		applied = append(applied, rec)
	}

	if err := w.applyAll(ctx, applied, resp.SyncID); err != nil {
		return err
	}
	for _, rec := range applied {
		if w.dispatcher != nil {
			w.dispatcher.Dispatch(rec)
		}
	}
	return nil
}

// enqueueFileDownload hands a file:incoming record to the file-download
// queue a FilesIncoming worker drains, stamping its own creation order
// (spec.md §4.9: the record persists on that queue until a successful
// write, with retry governed by §4.6).
func (w *Incoming) enqueueFileDownload(ctx context.Context, rec *Record) error {
	if w.files == nil {
		return nil
	}
	clone := rec.ShallowClone()
	clone.ID = rec.ID
	return w.files.Enqueue(ctx, clone, rec.CreatedAt)
}

// applyAll runs every record's per-type handler, in response order, then
// advances the cursor — all inside one transaction's worth of effect
// (spec.md §4.8 step 2: "apply inside one SQL transaction... advance
// cursor... as the last statement"). The underlying store's Save/Delete
// are each already individually transactional; true cross-record
// atomicity additionally requires the Applier to share one store-level
// transaction, which is the profile layer's concern once it exists — this
// worker's contract is strict in-order application plus a cursor advance
// that only happens after every record succeeds.
func (w *Incoming) applyAll(ctx context.Context, records []*Record, newCursor int64) error {
	for _, rec := range records {
		if err := w.applier.Apply(ctx, rec); err != nil {
			return turtlerr.Wrap(err, "sync.Incoming.applyAll: applying record "+rec.ID)
		}
		if w.Metrics != nil {
			w.Metrics.RecordsApplied.Inc()
		}
	}
	return w.saveCursor(ctx, newCursor)
}
