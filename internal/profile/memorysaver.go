package profile

import (
	"context"

	"turtlcore/internal/model"
	turtlsync "turtlcore/internal/sync"
	"turtlcore/internal/turtlerr"
)

// EventSink receives the UI-facing events the dispatch thread emits after
// a MemorySaver runs (spec.md §6's messaging channel events, e.g.
// `sync:incoming`).
type EventSink interface {
	Emit(name string, payload interface{})
}

// noopEventSink discards events; used when a caller doesn't care.
type noopEventSink struct{}

func (noopEventSink) Emit(string, interface{}) {}

// MemorySaver is the per-type hook the glossary describes: after a sync
// record has been persisted to the local store (StoreApplier.Apply), this
// decrypts it (if its key can be resolved) and updates the in-memory
// profile view plus the search index, then emits a UI event (spec.md
// §4.8 step 3).
type MemorySaver struct {
	profile *Profile
	events  EventSink
}

// NewMemorySaver builds a MemorySaver over p, emitting through sink (or a
// no-op sink if sink is nil).
func NewMemorySaver(p *Profile, sink EventSink) *MemorySaver {
	if sink == nil {
		sink = noopEventSink{}
	}
	return &MemorySaver{profile: p, events: sink}
}

// Save runs rec's per-type handler against the in-memory profile. It is
// deliberately tolerant of an unresolved key (spec.md §4.2 step 4): the
// object stays un-surfaced in memory until a later sync supplies the
// missing parent key, at which point a full profile reload picks it up.
func (m *MemorySaver) Save(rec *turtlsync.Record) {
	if err := m.save(rec); err != nil {
		pkgLogger.WithError(err).WithField("id", rec.ID).Warn("profile.MemorySaver: save failed")
		m.events.Emit("error", err)
		return
	}
	m.events.Emit("sync:incoming", rec)
}

func (m *MemorySaver) save(rec *turtlsync.Record) error {
	switch rec.Type {
	case turtlsync.TypeKeychain:
		return m.saveKeychain(rec)
	case turtlsync.TypeSpace:
		return m.saveSpace(rec)
	case turtlsync.TypeBoard:
		return m.saveBoard(rec)
	case turtlsync.TypeNote:
		return m.saveNote(rec)
	case turtlsync.TypeInvite:
		return m.saveInvite(rec)
	case turtlsync.TypeUser:
		return m.saveUser(rec)
	default:
		return nil
	}
}

func (m *MemorySaver) saveKeychain(rec *turtlsync.Record) error {
	if rec.Action == turtlsync.ActionDelete {
		m.profile.kc.RemoveEntry(rec.ItemID)
		return nil
	}
	entry := model.NewKeychainEntry()
	if err := decodeInto(rec.Data, entry); err != nil {
		return err
	}
	if err := model.Deserialize(entry, m.profile.kc, m.profile); err != nil {
		if turtlerr.IsNotFound(err) {
			return nil
		}
		return err
	}
	m.profile.kc.ReplaceEntry(entry.ToRuntimeEntry())
	return nil
}

func (m *MemorySaver) saveSpace(rec *turtlsync.Record) error {
	m.profile.mu.Lock()
	defer m.profile.mu.Unlock()
	if rec.Action == turtlsync.ActionDelete {
		delete(m.profile.spaces, rec.ItemID)
		return nil
	}
	s := model.NewSpace()
	if err := decodeInto(rec.Data, s); err != nil {
		return err
	}
	if err := model.Deserialize(s, m.profile.kc, m.profile); err != nil {
		if turtlerr.IsNotFound(err) {
			return nil
		}
		return err
	}
	m.profile.spaces[s.ID] = s
	return nil
}

func (m *MemorySaver) saveBoard(rec *turtlsync.Record) error {
	m.profile.mu.Lock()
	defer m.profile.mu.Unlock()
	if rec.Action == turtlsync.ActionDelete {
		delete(m.profile.boards, rec.ItemID)
		return nil
	}
	b := model.NewBoard()
	if err := decodeInto(rec.Data, b); err != nil {
		return err
	}
	if err := model.Deserialize(b, m.profile.kc, m.profile); err != nil {
		if turtlerr.IsNotFound(err) {
			return nil
		}
		return err
	}
	m.profile.boards[b.ID] = b
	return nil
}

func (m *MemorySaver) saveNote(rec *turtlsync.Record) error {
	m.profile.mu.Lock()
	defer m.profile.mu.Unlock()
	if rec.Action == turtlsync.ActionDelete {
		delete(m.profile.notes, rec.ItemID)
		m.profile.structured.Unindex(rec.ItemID)
		m.profile.fulltext.Unindex(rec.ItemID)
		return nil
	}
	n := model.NewNote()
	if err := decodeInto(rec.Data, n); err != nil {
		return err
	}
	if err := n.DeserializeWithFile(m.profile.kc, m.profile); err != nil {
		if turtlerr.IsNotFound(err) {
			return nil
		}
		return err
	}
	m.profile.notes[n.ID] = n
	m.profile.indexNoteLocked(n)
	return nil
}

func (m *MemorySaver) saveInvite(rec *turtlsync.Record) error {
	m.profile.mu.Lock()
	defer m.profile.mu.Unlock()
	if rec.Action == turtlsync.ActionDelete {
		delete(m.profile.invites, rec.ItemID)
		return nil
	}
	i := model.NewInvite()
	if err := decodeInto(rec.Data, i); err != nil {
		return err
	}
	m.profile.invites[i.ID] = i
	return nil
}

func (m *MemorySaver) saveUser(rec *turtlsync.Record) error {
	if rec.Action == turtlsync.ActionDelete {
		m.profile.SetUser(nil)
		return nil
	}
	u := model.NewUser()
	if err := decodeInto(rec.Data, u); err != nil {
		return err
	}
	if err := model.Deserialize(u, m.profile.kc, m.profile); err != nil {
		if turtlerr.IsNotFound(err) {
			return nil
		}
		return err
	}
	m.profile.SetUser(u)
	return nil
}

// DispatchQueue implements sync.Dispatcher over a bounded channel: the
// incoming-sync worker's Dispatch call never blocks on MemorySaver work,
// matching spec.md §5's "dispatch thread... reads from a bounded channel"
// description of the dispatch/API surface.
type DispatchQueue struct {
	ch     chan *turtlsync.Record
	saver  *MemorySaver
	closed chan struct{}
}

// NewDispatchQueue builds a DispatchQueue with the given channel capacity,
// running saver against every record Run drains.
func NewDispatchQueue(saver *MemorySaver, capacity int) *DispatchQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &DispatchQueue{
		ch:     make(chan *turtlsync.Record, capacity),
		saver:  saver,
		closed: make(chan struct{}),
	}
}

// Dispatch implements sync.Dispatcher: enqueues rec for the dispatch
// thread's Run loop. Blocks only if the queue is saturated — back-pressure
// on the sync worker rather than an unbounded queue.
func (q *DispatchQueue) Dispatch(rec *turtlsync.Record) {
	select {
	case q.ch <- rec:
	case <-q.closed:
	}
}

// Run drains the queue, running the MemorySaver for each record, until ctx
// is cancelled.
func (q *DispatchQueue) Run(ctx context.Context) {
	defer close(q.closed)
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-q.ch:
			q.saver.Save(rec)
		}
	}
}
