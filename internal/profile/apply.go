package profile

import (
	"context"

	turtlsync "turtlcore/internal/sync"
	"turtlcore/internal/turtlerr"
)

// tableFor maps a sync record's Type to the local store table it belongs
// in. File records don't land in the object store at all — they're handled
// by the (separate) file-transfer streams, keyed off the owning note.
func tableFor(t turtlsync.Type) (string, bool) {
	switch t {
	case turtlsync.TypeUser:
		return TableUsers, true
	case turtlsync.TypeKeychain:
		return TableKeychain, true
	case turtlsync.TypeSpace:
		return TableSpaces, true
	case turtlsync.TypeBoard:
		return TableBoards, true
	case turtlsync.TypeNote:
		return TableNotes, true
	case turtlsync.TypeInvite:
		return TableInvites, true
	default:
		return "", false
	}
}

// StoreApplier implements sync.Applier: the transactional local-store half
// of applying an incoming record (spec.md §4.8 step 2a), independent of
// the in-memory profile view — the MemorySaver step updates that
// separately, once this has committed.
type StoreApplier struct {
	profile *Profile
}

// NewStoreApplier builds a StoreApplier writing into p's backing store.
func NewStoreApplier(p *Profile) *StoreApplier {
	return &StoreApplier{profile: p}
}

// Apply persists a single incoming record: a save (add/edit/move-space) or
// a delete, against the table its Type maps to. A file-type record is a
// no-op here; it only ever triggers the file-transfer stream.
func (a *StoreApplier) Apply(ctx context.Context, rec *turtlsync.Record) error {
	table, ok := tableFor(rec.Type)
	if !ok {
		pkgLogger.WithField("type", rec.Type).Debug("profile.StoreApplier: no local table for sync type, skipping")
		return nil
	}
	if rec.Action == turtlsync.ActionDelete {
		if err := a.profile.store.Delete(ctx, table, rec.ItemID); err != nil {
			return turtlerr.Wrap(err, "profile.StoreApplier.Apply: delete")
		}
		return nil
	}
	if len(rec.Data) == 0 {
		return turtlerr.MissingField("sync record data")
	}
	if err := a.profile.store.Save(ctx, table, rec.ItemID, rec.Data); err != nil {
		return turtlerr.Wrap(err, "profile.StoreApplier.Apply: save")
	}
	return nil
}
