package profile

import (
	"context"
	"path/filepath"
	"testing"

	"turtlcore/internal/crypto"
	"turtlcore/internal/model"
	"turtlcore/internal/store"
	turtlsync "turtlcore/internal/sync"
)

func openTestMutator(t *testing.T) (*Profile, *turtlsync.Queue, *Mutator) {
	t.Helper()
	schema := Schema()
	schema[turtlsync.Table] = nil
	s, err := store.Open(filepath.Join(t.TempDir(), "turtl.db"), schema)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	p := New(s)
	rootKey, err := crypto.RandomSymmetricKey()
	if err != nil {
		t.Fatalf("RandomSymmetricKey: %v", err)
	}
	u := model.NewUser()
	u.ID = "u1"
	u.Username = "jane"
	u.SetKey(rootKey)
	p.SetUser(u)

	q := turtlsync.NewQueue(s)
	files := turtlsync.NewFileStore(t.TempDir())
	return p, q, NewMutator(p, q, files, "u1")
}

func TestCreateSpacePersistsSpaceAndKeychainEntry(t *testing.T) {
	ctx := context.Background()
	p, q, m := openTestMutator(t)

	space, err := m.CreateSpace(ctx, "inbox", "red")
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	if space.Title() != "inbox" || space.Color() != "red" {
		t.Fatalf("CreateSpace fields = %q/%q", space.Title(), space.Color())
	}

	got, ok := p.Space(space.ID)
	if !ok || got != space {
		t.Fatalf("Space(%s) = %v, %v", space.ID, got, ok)
	}

	if _, ok := p.Keychain().Find(space.ID); !ok {
		t.Fatalf("keychain has no key for new space")
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	var sawSpace, sawKeychain bool
	for _, rec := range pending {
		switch rec.Type {
		case turtlsync.TypeSpace:
			sawSpace = true
			if rec.ItemID != space.ID || rec.Action != turtlsync.ActionAdd {
				t.Fatalf("space record = %+v", rec)
			}
		case turtlsync.TypeKeychain:
			sawKeychain = true
		}
	}
	if !sawSpace || !sawKeychain {
		t.Fatalf("pending = %+v, want space+keychain add records", pending)
	}

	raw, ok, err := p.store.Get(ctx, TableSpaces, space.ID)
	if err != nil || !ok {
		t.Fatalf("store.Get space: ok=%v err=%v", ok, err)
	}
	if len(raw) == 0 {
		t.Fatalf("stored space is empty")
	}
}

func TestEditSpaceUpdatesFieldsAndEnqueuesEdit(t *testing.T) {
	ctx := context.Background()
	p, q, m := openTestMutator(t)

	space, err := m.CreateSpace(ctx, "inbox", "red")
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}

	if err := m.EditSpace(ctx, space, "renamed", "blue"); err != nil {
		t.Fatalf("EditSpace: %v", err)
	}
	if space.Title() != "renamed" || space.Color() != "blue" {
		t.Fatalf("EditSpace fields = %q/%q", space.Title(), space.Color())
	}

	got, ok := p.Space(space.ID)
	if !ok || got.Title() != "renamed" {
		t.Fatalf("Space(%s) after edit = %v, %v", space.ID, got, ok)
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	var edits int
	for _, rec := range pending {
		if rec.Type == turtlsync.TypeSpace && rec.Action == turtlsync.ActionEdit {
			edits++
		}
	}
	if edits != 1 {
		t.Fatalf("expected 1 space edit record, got %d in %+v", edits, pending)
	}
}

func TestDeleteSpaceCascadesBoardsAndNotes(t *testing.T) {
	ctx := context.Background()
	p, q, m := openTestMutator(t)

	space, err := m.CreateSpace(ctx, "inbox", "")
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	board, err := m.CreateBoard(ctx, space.ID, "todo")
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	note, err := m.CreateNote(ctx, space.ID, &board.ID, NoteFields{Title: "hello"})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	if err := m.DeleteSpace(ctx, space.ID); err != nil {
		t.Fatalf("DeleteSpace: %v", err)
	}

	if _, ok := p.Space(space.ID); ok {
		t.Fatalf("space still present after DeleteSpace")
	}
	if _, ok := p.Board(board.ID); ok {
		t.Fatalf("board still present after DeleteSpace")
	}
	if _, ok := p.Note(note.ID); ok {
		t.Fatalf("note still present after DeleteSpace")
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	var sawSpaceDelete bool
	for _, rec := range pending {
		if rec.Type == turtlsync.TypeSpace && rec.Action == turtlsync.ActionDelete && rec.ItemID == space.ID {
			sawSpaceDelete = true
		}
		if rec.Type == turtlsync.TypeBoard && rec.Action == turtlsync.ActionDelete {
			t.Fatalf("DeleteSpace should not enqueue a separate board delete record, got %+v", rec)
		}
	}
	if !sawSpaceDelete {
		t.Fatalf("expected a space delete record, got %+v", pending)
	}
}

func TestCreateBoardSharesSpaceKey(t *testing.T) {
	ctx := context.Background()
	p, _, m := openTestMutator(t)

	space, err := m.CreateSpace(ctx, "inbox", "")
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	board, err := m.CreateBoard(ctx, space.ID, "todo")
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}

	boards := p.Boards(space.ID)
	if len(boards) != 1 || boards[0].ID != board.ID {
		t.Fatalf("Boards(%s) = %+v", space.ID, boards)
	}
}

func TestCreateEditDeleteNote(t *testing.T) {
	ctx := context.Background()
	p, q, m := openTestMutator(t)

	space, err := m.CreateSpace(ctx, "inbox", "")
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}

	note, err := m.CreateNote(ctx, space.ID, nil, NoteFields{
		Type:  "text",
		Title: "hello",
		Text:  "world",
		Tags:  []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if note.Title() != "hello" || note.Text() != "world" {
		t.Fatalf("CreateNote fields = %q/%q", note.Title(), note.Text())
	}

	results := p.Query().Tag("a").Results()
	found := false
	for _, id := range results {
		if id == note.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("note %s not indexed under tag a: %v", note.ID, results)
	}

	if err := m.EditNote(ctx, note, NoteFields{Type: "text", Title: "renamed", Text: "world", Tags: []string{"a"}}); err != nil {
		t.Fatalf("EditNote: %v", err)
	}
	if note.Title() != "renamed" {
		t.Fatalf("EditNote did not update title: %q", note.Title())
	}

	if err := m.DeleteNote(ctx, note.ID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if _, ok := p.Note(note.ID); ok {
		t.Fatalf("note still present after DeleteNote")
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	var deletes int
	for _, rec := range pending {
		if rec.Type == turtlsync.TypeNote && rec.Action == turtlsync.ActionDelete {
			deletes++
		}
	}
	if deletes != 1 {
		t.Fatalf("expected 1 note delete record, got %d in %+v", deletes, pending)
	}
}

func TestCreateNoteWithFileWritesBlobAndEnqueuesFileAdd(t *testing.T) {
	ctx := context.Background()
	p, q, m := openTestMutator(t)

	space, err := m.CreateSpace(ctx, "inbox", "")
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}

	plaintext := []byte("1234")
	note, err := m.CreateNote(ctx, space.ID, nil, NoteFields{
		Title:    "photo",
		FileName: "photo.jpg",
		FileType: "image/jpeg",
		FileData: plaintext,
	})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if !note.HasFile || note.File == nil {
		t.Fatalf("CreateNote: HasFile/File not set: %+v", note)
	}
	if note.File.Name() != "photo.jpg" || note.File.Size != uint64(len(plaintext)) {
		t.Fatalf("CreateNote: file descriptor = %+v", note.File)
	}

	blob, err := m.files.Read("u1", note.ID)
	if err != nil {
		t.Fatalf("files.Read: %v", err)
	}
	decrypted, err := crypto.Decrypt(note.Key(), blob)
	if err != nil {
		t.Fatalf("crypto.Decrypt: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Fatalf("decrypted blob = %q, want %q", decrypted, plaintext)
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	var sawNoteAdd, sawFileAdd bool
	for _, rec := range pending {
		if rec.Type == turtlsync.TypeNote && rec.Action == turtlsync.ActionAdd && rec.ItemID == note.ID {
			sawNoteAdd = true
		}
		if rec.Type == turtlsync.TypeFile && rec.Action == turtlsync.ActionAdd && rec.ItemID == note.ID {
			sawFileAdd = true
			if !rec.IsFileAdd() {
				t.Fatalf("file record does not satisfy IsFileAdd: %+v", rec)
			}
		}
	}
	if !sawNoteAdd || !sawFileAdd {
		t.Fatalf("pending = %+v, want a note add and a file add record", pending)
	}
}
