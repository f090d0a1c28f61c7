package profile

import (
	"context"
	"encoding/json"
	"time"

	"turtlcore/internal/crypto"
	"turtlcore/internal/keychain"
	"turtlcore/internal/model"
	turtlsync "turtlcore/internal/sync"
	"turtlcore/internal/turtlerr"
)

// Mutator is the write half of the profile: every local change a UI
// command makes goes through here, matching spec.md §5's data-flow summary
// ("UI command -> Dispatch -> Protected Model ops -> (Local store |
// Outgoing queue)"). It serializes the model, writes it to the local
// store, updates the in-memory view, and enqueues the resulting change for
// outgoing sync, all as one call.
type Mutator struct {
	profile *Profile
	queue   *turtlsync.Queue
	files   *turtlsync.FileStore
	userID  string
}

// NewMutator builds a Mutator for the given logged-in user. files is the
// on-disk attachment store an AttachFile call writes its ciphertext blob
// to — nil is fine for tests that never attach a file.
func NewMutator(p *Profile, queue *turtlsync.Queue, files *turtlsync.FileStore, userID string) *Mutator {
	return &Mutator{profile: p, queue: queue, files: files, userID: userID}
}

func (m *Mutator) enqueue(ctx context.Context, action turtlsync.Action, itemID string, ty turtlsync.Type, data []byte) error {
	rec := &turtlsync.Record{
		ID:     model.NewID(),
		Action: action,
		ItemID: itemID,
		UserID: m.userID,
		Type:   ty,
		Data:   data,
	}
	return m.queue.Enqueue(ctx, rec, time.Now().UnixNano())
}

// CreateSpace generates a new Space, keys it, serializes it, saves it
// locally, registers its key in the keychain, and enqueues an add sync
// record (spec.md §4.2's "a Space's key lives directly in the owning
// user's keychain, added there on creation").
func (m *Mutator) CreateSpace(ctx context.Context, title, color string) (*model.Space, error) {
	key, err := crypto.RandomSymmetricKey()
	if err != nil {
		return nil, turtlerr.Wrap(err, "profile.Mutator.CreateSpace: generating key")
	}
	s := model.NewSpace()
	s.ID = model.NewID()
	s.OwnerID = m.userID
	s.SetKey(key)
	s.SetTitle(title)
	s.SetColor(color)
	if err := model.DoValidate("space", s); err != nil {
		return nil, err
	}
	if err := model.Serialize(s, m.profile); err != nil {
		return nil, turtlerr.Wrap(err, "profile.Mutator.CreateSpace: serializing")
	}
	if err := m.profile.kc.UpsertKey(s.ID, key, keychain.TypeSpace, m.userID, newKeychainEntryID); err != nil {
		return nil, turtlerr.Wrap(err, "profile.Mutator.CreateSpace: registering key")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, turtlerr.Wrap(err, "profile.Mutator.CreateSpace: encoding")
	}
	if err := m.profile.store.Save(ctx, TableSpaces, s.ID, data); err != nil {
		return nil, err
	}
	m.profile.mu.Lock()
	m.profile.spaces[s.ID] = s
	m.profile.mu.Unlock()
	if err := m.enqueue(ctx, turtlsync.ActionAdd, s.ID, turtlsync.TypeSpace, data); err != nil {
		return nil, err
	}
	if err := m.persistKeychainEntry(ctx, s.ID); err != nil {
		return nil, err
	}
	return s, nil
}

// EditSpace re-serializes an in-memory space after the caller mutates its
// title/color, persisting and enqueueing an edit sync record. The caller
// must have already obtained s via Profile.Space so it carries its
// resolved key.
func (m *Mutator) EditSpace(ctx context.Context, s *model.Space, title, color string) error {
	s.SetTitle(title)
	s.SetColor(color)
	if err := model.DoValidate("space", s); err != nil {
		return err
	}
	if err := model.Serialize(s, m.profile); err != nil {
		return turtlerr.Wrap(err, "profile.Mutator.EditSpace: serializing")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return turtlerr.Wrap(err, "profile.Mutator.EditSpace: encoding")
	}
	if err := m.profile.store.Save(ctx, TableSpaces, s.ID, data); err != nil {
		return err
	}
	m.profile.mu.Lock()
	m.profile.spaces[s.ID] = s
	m.profile.mu.Unlock()
	return m.enqueue(ctx, turtlsync.ActionEdit, s.ID, turtlsync.TypeSpace, data)
}

// DeleteSpace removes a space and everything under it locally (its boards
// and notes — a space's key is the sole key its children share, so nothing
// under it remains reachable once it's gone) and enqueues a single delete
// sync record for the space itself; the server cascades the rest.
func (m *Mutator) DeleteSpace(ctx context.Context, spaceID string) error {
	m.profile.mu.Lock()
	var boardIDs, noteIDs []string
	for id, b := range m.profile.boards {
		if b.SpaceID == spaceID {
			boardIDs = append(boardIDs, id)
		}
	}
	for id, n := range m.profile.notes {
		if n.SpaceID == spaceID {
			noteIDs = append(noteIDs, id)
		}
	}
	m.profile.mu.Unlock()

	for _, id := range noteIDs {
		if err := m.profile.store.Delete(ctx, TableNotes, id); err != nil {
			return err
		}
	}
	for _, id := range boardIDs {
		if err := m.profile.store.Delete(ctx, TableBoards, id); err != nil {
			return err
		}
	}
	if err := m.profile.store.Delete(ctx, TableSpaces, spaceID); err != nil {
		return err
	}

	m.profile.mu.Lock()
	for _, id := range noteIDs {
		delete(m.profile.notes, id)
		m.profile.structured.Unindex(id)
		m.profile.fulltext.Unindex(id)
	}
	for _, id := range boardIDs {
		delete(m.profile.boards, id)
	}
	delete(m.profile.spaces, spaceID)
	m.profile.mu.Unlock()

	return m.enqueue(ctx, turtlsync.ActionDelete, spaceID, turtlsync.TypeSpace, nil)
}

// persistKeychainEntry serializes and saves the wire form of the keychain
// entry UpsertKey just installed for itemID, and enqueues it for outgoing
// sync — a locally added space/board key exists only in memory until this
// runs (spec.md §4.2: the space key "lives directly in the owning user's
// keychain").
func (m *Mutator) persistKeychainEntry(ctx context.Context, itemID string) error {
	entry, ok := m.profile.kc.Entry(itemID)
	if !ok {
		return turtlerr.NotFound("no keychain entry for %s", itemID)
	}
	user := m.profile.User()
	if user == nil {
		return turtlerr.NotFound("no logged-in user to encrypt keychain entry under")
	}
	ke := model.FromRuntimeEntry(entry, user.Key())
	if err := model.Serialize(ke, m.profile); err != nil {
		return turtlerr.Wrap(err, "profile.Mutator.persistKeychainEntry: serializing")
	}
	data, err := json.Marshal(ke)
	if err != nil {
		return turtlerr.Wrap(err, "profile.Mutator.persistKeychainEntry: encoding")
	}
	if err := m.profile.store.Save(ctx, TableKeychain, ke.ID, data); err != nil {
		return err
	}
	return m.enqueue(ctx, turtlsync.ActionAdd, ke.ID, turtlsync.TypeKeychain, data)
}

// CreateBoard generates a new Board under spaceID, sharing the space's key
// through KeyRefs (spec.md §4.2: "a Board yields its parent space").
func (m *Mutator) CreateBoard(ctx context.Context, spaceID, title string) (*model.Board, error) {
	key, err := crypto.RandomSymmetricKey()
	if err != nil {
		return nil, turtlerr.Wrap(err, "profile.Mutator.CreateBoard: generating key")
	}
	b := model.NewBoard()
	b.ID = model.NewID()
	b.SpaceID = spaceID
	b.UserID = m.userID
	b.SetKey(key)
	b.SetTitle(title)
	if err := model.DoValidate("board", b); err != nil {
		return nil, err
	}
	if err := model.Serialize(b, m.profile); err != nil {
		return nil, turtlerr.Wrap(err, "profile.Mutator.CreateBoard: serializing")
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, turtlerr.Wrap(err, "profile.Mutator.CreateBoard: encoding")
	}
	if err := m.profile.store.Save(ctx, TableBoards, b.ID, data); err != nil {
		return nil, err
	}
	m.profile.mu.Lock()
	m.profile.boards[b.ID] = b
	m.profile.mu.Unlock()
	if err := m.enqueue(ctx, turtlsync.ActionAdd, b.ID, turtlsync.TypeBoard, data); err != nil {
		return nil, err
	}
	return b, nil
}

// NoteFields is the subset of a Note's private content a UI command
// supplies when creating or editing one.
type NoteFields struct {
	Type  string
	Title string
	Text  string
	Tags  []string
	Color int64

	// FileName/FileType/FileData optionally attach a file to the note
	// (spec.md §4.9 outgoing / component #10). A zero-length FileData
	// leaves the note without an attachment; json.Marshal/Unmarshal
	// already base64-encode []byte, matching the wire's file-body
	// convention.
	FileName string
	FileType string
	FileData []byte
}

// CreateNote generates a new Note in spaceID (optionally under boardID),
// sharing its key with both per KeyRefs.
func (m *Mutator) CreateNote(ctx context.Context, spaceID string, boardID *string, f NoteFields) (*model.Note, error) {
	key, err := crypto.RandomSymmetricKey()
	if err != nil {
		return nil, turtlerr.Wrap(err, "profile.Mutator.CreateNote: generating key")
	}
	n := model.NewNote()
	n.ID = model.NewID()
	n.SpaceID = spaceID
	n.BoardID = boardID
	n.UserID = m.userID
	n.SetKey(key)
	applyNoteFields(n, f)
	if err := model.DoValidate("note", n); err != nil {
		return nil, err
	}
	if err := n.SerializeWithFile(m.profile); err != nil {
		return nil, turtlerr.Wrap(err, "profile.Mutator.CreateNote: serializing")
	}
	if err := m.persistAndEnqueueNote(ctx, n, turtlsync.ActionAdd); err != nil {
		return nil, err
	}
	if len(f.FileData) > 0 {
		if err := m.writeNoteFile(ctx, n, f.FileData); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// EditNote re-serializes an in-memory note after the caller mutates its
// fields, persisting and enqueueing an edit sync record. The caller must
// have already obtained n via Profile.Note so it carries its resolved key.
func (m *Mutator) EditNote(ctx context.Context, n *model.Note, f NoteFields) error {
	applyNoteFields(n, f)
	if err := model.DoValidate("note", n); err != nil {
		return err
	}
	if err := n.SerializeWithFile(m.profile); err != nil {
		return turtlerr.Wrap(err, "profile.Mutator.EditNote: serializing")
	}
	if err := m.persistAndEnqueueNote(ctx, n, turtlsync.ActionEdit); err != nil {
		return err
	}
	if len(f.FileData) > 0 {
		return m.writeNoteFile(ctx, n, f.FileData)
	}
	return nil
}

// MoveNote reassigns n to a different board within the same space,
// re-sealing its key refs and enqueueing a move-space sync record per
// spec.md §6's `profile:sync:model` action set.
func (m *Mutator) MoveNote(ctx context.Context, n *model.Note, boardID *string) error {
	n.BoardID = boardID
	if err := n.SerializeWithFile(m.profile); err != nil {
		return turtlerr.Wrap(err, "profile.Mutator.MoveNote: serializing")
	}
	return m.persistAndEnqueueNote(ctx, n, turtlsync.ActionMoveSpace)
}

// DeleteNote removes a note locally and enqueues a delete sync record.
func (m *Mutator) DeleteNote(ctx context.Context, noteID string) error {
	if err := m.profile.store.Delete(ctx, TableNotes, noteID); err != nil {
		return err
	}
	m.profile.mu.Lock()
	delete(m.profile.notes, noteID)
	m.profile.structured.Unindex(noteID)
	m.profile.fulltext.Unindex(noteID)
	m.profile.mu.Unlock()
	return m.enqueue(ctx, turtlsync.ActionDelete, noteID, turtlsync.TypeNote, nil)
}

func (m *Mutator) persistAndEnqueueNote(ctx context.Context, n *model.Note, action turtlsync.Action) error {
	data, err := json.Marshal(n)
	if err != nil {
		return turtlerr.Wrap(err, "profile.Mutator: encoding note")
	}
	if err := m.profile.store.Save(ctx, TableNotes, n.ID, data); err != nil {
		return err
	}
	m.profile.mu.Lock()
	m.profile.notes[n.ID] = n
	m.profile.indexNoteLocked(n)
	m.profile.mu.Unlock()
	return m.enqueue(ctx, action, n.ID, turtlsync.TypeNote, data)
}

func applyNoteFields(n *model.Note, f NoteFields) {
	if f.Type != "" {
		n.SetType(f.Type)
	}
	n.SetTitle(f.Title)
	n.SetText(f.Text)
	n.SetTags(f.Tags)
	n.SetColor(f.Color)
	if len(f.FileData) > 0 {
		fd := model.NewFileDescriptor()
		fd.ID = model.NewID()
		fd.Size = uint64(len(f.FileData))
		fd.HasData = true
		fd.SetName(f.FileName)
		fd.SetType(f.FileType)
		n.File = fd
		n.HasFile = true
	}
}

// writeNoteFile encrypts a file's plaintext bytes under the note's own key
// (the File submodel already serialized its descriptor under the same key
// via SerializeWithFile) and writes the resulting ciphertext blob to the
// local file layout the outgoing worker reads from, then enqueues the
// file/add record that worker's fileAdds branch drains independently of
// the note's own model-sync record (spec.md §4.9: "file uploads strictly
// after owning model" — both records exist on the same outgoing queue, but
// Outgoing.RunOnce always sends model syncs before walking fileAdds).
func (m *Mutator) writeNoteFile(ctx context.Context, n *model.Note, plaintext []byte) error {
	if m.files == nil {
		return turtlerr.BadValue("profile.Mutator.writeNoteFile: no file store configured")
	}
	blob, err := crypto.Encrypt(n.Key(), plaintext)
	if err != nil {
		return turtlerr.Wrap(err, "profile.Mutator.writeNoteFile: encrypting blob")
	}
	if err := m.files.Write(m.userID, n.ID, blob); err != nil {
		return turtlerr.Wrap(err, "profile.Mutator.writeNoteFile: writing blob")
	}
	return m.enqueue(ctx, turtlsync.ActionAdd, n.ID, turtlsync.TypeFile, nil)
}

func newKeychainEntryID() (string, error) {
	return model.NewID(), nil
}
