package profile

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"turtlcore/internal/crypto"
	"turtlcore/internal/keychain"
	"turtlcore/internal/model"
	"turtlcore/internal/store"
)

func openTestProfile(t *testing.T) *Profile {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "turtl.db"), Schema())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestCandidateKeyDelegatesToKeychain(t *testing.T) {
	p := openTestProfile(t)
	key, err := crypto.RandomSymmetricKey()
	if err != nil {
		t.Fatalf("RandomSymmetricKey: %v", err)
	}
	if err := p.Keychain().UpsertKey("space1", key, keychain.TypeSpace, "u1", newKeychainEntryID); err != nil {
		t.Fatalf("UpsertKey: %v", err)
	}

	got, ok := p.CandidateKey("space1")
	if !ok {
		t.Fatalf("CandidateKey: not found")
	}
	if string(got.Data()) != string(key.Data()) {
		t.Fatalf("CandidateKey returned wrong key")
	}

	if _, ok := p.CandidateKey("nope"); ok {
		t.Fatalf("CandidateKey: expected miss for unknown id")
	}
}

func TestSpaceAndBoardVisibleAfterDirectInsert(t *testing.T) {
	ctx := context.Background()
	p := openTestProfile(t)
	m := NewMutator(p, nil, nil, "u1")
	_ = m

	space, err := createSpaceDirect(t, ctx, p, "inbox", "")
	if err != nil {
		t.Fatalf("createSpaceDirect: %v", err)
	}
	board := model.NewBoard()
	board.ID = model.NewID()
	board.SpaceID = space.ID
	board.UserID = "u1"
	board.SetTitle("todo")
	boardKey, err := crypto.RandomSymmetricKey()
	if err != nil {
		t.Fatalf("RandomSymmetricKey: %v", err)
	}
	board.SetKey(boardKey)
	if err := model.Serialize(board, p); err != nil {
		t.Fatalf("Serialize board: %v", err)
	}
	boardData, err := json.Marshal(board)
	if err != nil {
		t.Fatalf("encode board: %v", err)
	}
	if err := p.store.Save(ctx, TableBoards, board.ID, boardData); err != nil {
		t.Fatalf("Save board: %v", err)
	}

	// reload a fresh profile sharing the same store and verify it
	// reconstructs space+board from the stored ciphertext using only the
	// keychain entries already persisted would require saving the
	// keychain too; here we just verify the in-process profile sees both.
	p.mu.Lock()
	p.spaces[space.ID] = space
	p.boards[board.ID] = board
	p.mu.Unlock()

	if _, ok := p.Space(space.ID); !ok {
		t.Fatalf("Space: not found after direct insert")
	}
	boards := p.Boards(space.ID)
	if len(boards) != 1 || boards[0].ID != board.ID {
		t.Fatalf("Boards(%s) = %+v", space.ID, boards)
	}
}

func createSpaceDirect(t *testing.T, ctx context.Context, p *Profile, title, color string) (*model.Space, error) {
	t.Helper()
	key, err := crypto.RandomSymmetricKey()
	if err != nil {
		return nil, err
	}
	s := model.NewSpace()
	s.ID = model.NewID()
	s.OwnerID = "u1"
	s.SetKey(key)
	s.SetTitle(title)
	s.SetColor(color)
	if err := model.Serialize(s, p); err != nil {
		return nil, err
	}
	if err := p.kc.UpsertKey(s.ID, key, keychain.TypeSpace, "u1", newKeychainEntryID); err != nil {
		return nil, err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	if err := p.store.Save(ctx, TableSpaces, s.ID, data); err != nil {
		return nil, err
	}
	return s, nil
}
