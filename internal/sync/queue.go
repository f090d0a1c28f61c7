package sync

import (
	"context"
	"encoding/json"
	"sort"

	"turtlcore/internal/store"
	"turtlcore/internal/turtlerr"
)

// Table is the store table name the outgoing sync queue lives in.
const Table = "sync"

// FilesIncomingTable is the store table name the file-download queue lives
// in — a separate table from Table since a file:incoming record is never a
// candidate for the outgoing model-sync batch (spec.md §5: "file incoming
// thread... own their own DB handles").
const FilesIncomingTable = "sync_files_incoming"

// Queue wraps one of the local store's sync-record tables with the FIFO
// queue semantics spec.md §4.6 describes, plus the unfreeze/delete operator
// commands §4.6 and the messaging command table call for.
type Queue struct {
	store *store.Store
	table string
}

// NewQueue binds a Queue to the given local store's outgoing-sync table.
func NewQueue(s *store.Store) *Queue {
	return &Queue{store: s, table: Table}
}

// NewFilesIncomingQueue binds a Queue to the separate file-download table,
// reusing the same FIFO/retry/freeze semantics for incoming file-transfer
// tasks (spec.md §4.9's "retry governed by §4.6").
func NewFilesIncomingQueue(s *store.Store) *Queue {
	return &Queue{store: s, table: FilesIncomingTable}
}

// Enqueue adds a new sync record, stamping its creation order.
func (q *Queue) Enqueue(ctx context.Context, rec *Record, createdAt int64) error {
	rec.CreatedAt = createdAt
	return q.save(ctx, rec)
}

func (q *Queue) save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return turtlerr.Wrap(err, "sync.Queue.save: encoding record")
	}
	return q.store.Save(ctx, q.table, rec.ID, data)
}

// Get loads a single sync record by id.
func (q *Queue) Get(ctx context.Context, id string) (*Record, bool, error) {
	data, ok, err := q.store.Get(ctx, q.table, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, turtlerr.Wrap(err, "sync.Queue.Get: decoding record")
	}
	return &rec, true, nil
}

// Delete removes a sync record (successful apply, or an operator-initiated
// delete of a frozen item).
func (q *Queue) Delete(ctx context.Context, id string) error {
	return q.store.Delete(ctx, q.table, id)
}

// All loads every sync record, sorted by creation order (FIFO).
func (q *Queue) All(ctx context.Context) ([]*Record, error) {
	rows, err := q.store.All(ctx, q.table)
	if err != nil {
		return nil, err
	}
	recs := make([]*Record, 0, len(rows))
	for _, data := range rows {
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, turtlerr.Wrap(err, "sync.Queue.All: decoding record")
		}
		recs = append(recs, &rec)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].CreatedAt != recs[j].CreatedAt {
			return recs[i].CreatedAt < recs[j].CreatedAt
		}
		return recs[i].ID < recs[j].ID
	})
	return recs, nil
}

// Pending returns every non-frozen record in FIFO order (spec.md §4.6: "a
// record with frozen=true is skipped but not removed").
func (q *Queue) Pending(ctx context.Context) ([]*Record, error) {
	all, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if !r.Frozen {
			out = append(out, r)
		}
	}
	return out, nil
}

// Frozen returns every frozen record, mainly for the UI's own amusement
// (enumerating an interface for unfreezing or deleting bad sync records).
func (q *Queue) Frozen(ctx context.Context) ([]*Record, error) {
	all, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, r := range all {
		if r.Frozen {
			out = append(out, r)
		}
	}
	return out, nil
}

// HandleFailure increments a failed record's errcount, freezing it once the
// count exceeds MaxAllowedFailures (spec.md §4.6's retry policy).
func (q *Queue) HandleFailure(ctx context.Context, id string) error {
	rec, ok, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		// already deleted locally; nothing to mark failed.
		return nil
	}
	rec.Errcount++
	if rec.Errcount > MaxAllowedFailures {
		rec.Frozen = true
	}
	return q.save(ctx, rec)
}

// Unfreeze clears a record's frozen flag so it re-enters the outgoing
// queue, per the `sync:unfreeze`-style operator command.
func (q *Queue) Unfreeze(ctx context.Context, id string) error {
	rec, ok, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return turtlerr.NotFound("sync.Queue.Unfreeze: %s", id)
	}
	rec.Frozen = false
	return q.save(ctx, rec)
}
