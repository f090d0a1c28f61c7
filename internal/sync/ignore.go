package sync

import (
	"context"
	"encoding/json"
	"strconv"

	"turtlcore/internal/store"
	"turtlcore/internal/turtlerr"
)

// ignoreKVKey is the kv table key the ignore-next set is persisted under,
// named after the reference implementation's own key of the same purpose.
const ignoreKVKey = "sync:incoming:ignore"

// IgnoreSet tracks server sync ids that outgoing sync has already applied
// locally, so incoming sync does not re-apply them a second time (spec.md
// §4.7 step 2 / §4.8 step 2: "the ignore-next set").
type IgnoreSet struct {
	store *store.Store
}

// NewIgnoreSet binds an IgnoreSet to the given local store.
func NewIgnoreSet(s *store.Store) *IgnoreSet {
	return &IgnoreSet{store: s}
}

func (g *IgnoreSet) load(ctx context.Context) (map[int64]bool, error) {
	data, ok, err := g.store.KVGet(ctx, ignoreKVKey)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool)
	if !ok {
		return out, nil
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, turtlerr.Wrap(err, "sync.IgnoreSet.load: decoding")
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (g *IgnoreSet) persist(ctx context.Context, ids map[int64]bool) error {
	list := make([]int64, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return turtlerr.Wrap(err, "sync.IgnoreSet.persist: encoding")
	}
	return g.store.KVSet(ctx, ignoreKVKey, data)
}

// Add marks sync ids to be ignored on the next incoming sync pass.
func (g *IgnoreSet) Add(ctx context.Context, syncIDs []int64) error {
	if len(syncIDs) == 0 {
		return nil
	}
	ids, err := g.load(ctx)
	if err != nil {
		return err
	}
	for _, id := range syncIDs {
		ids[id] = true
	}
	return g.persist(ctx, ids)
}

// FilterOut drops records whose id is in the ignore set, without clearing
// it; the set is emptied only by an explicit Clear call.
func (g *IgnoreSet) FilterOut(ctx context.Context, records []*Record) ([]*Record, error) {
	ids, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return records, nil
	}
	out := make([]*Record, 0, len(records))
	for _, r := range records {
		id, convErr := parseSyncID(r.ID)
		if convErr == nil && ids[id] {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Clear empties the ignore set. The incoming worker does not call it, so
// ids added by outgoing sync stay in the set across passes.
func (g *IgnoreSet) Clear(ctx context.Context) error {
	return g.store.KVDelete(ctx, ignoreKVKey)
}

func parseSyncID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
