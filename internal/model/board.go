package model

import (
	"turtlcore/internal/crypto"
	"turtlcore/internal/keychain"
	"turtlcore/internal/turtlerr"
)

// Board is a secondary grouping within a Space. It references its Space by
// id rather than owning it (spec.md §3).
type Board struct {
	Base

	SpaceID string `json:"space_id"`
	UserID  string `json:"user_id"`

	private boardPrivate
}

type boardPrivate struct {
	Title string `json:"title"`
}

func NewBoard() *Board { return &Board{} }

func (b *Board) ModelBase() *Base         { return &b.Base }
func (b *Board) PrivateData() interface{} { return &b.private }
func (b *Board) Title() string            { return b.private.Title }
func (b *Board) SetTitle(title string)    { b.private.Title = title }

// KeyRefs shares the Board's key with its owning Space, so that anyone who
// can decrypt the Space can also decrypt its Boards (spec.md §4.2: "a Board
// yields its parent space").
func (b *Board) KeyRefs(candidates keychain.CandidateSource) ([]keychain.KeyRef, error) {
	spaceKey, ok := candidates.CandidateKey(b.SpaceID)
	if !ok {
		return nil, nil
	}
	ref, err := sealKeyRef(keychain.KeyRef{ItemID: b.SpaceID, Type: keychain.TypeSpace}, b.Base.key, spaceKey)
	if err != nil {
		return nil, err
	}
	return []keychain.KeyRef{ref}, nil
}

// sealKeyRef finishes a KeyRef skeleton (ItemID/Type set by the caller) by
// encrypting the model's own key under the target key, producing the
// `{ty: id, k: envelope}` entry spec.md §4.3 step 5 describes. Shared by
// every model type whose KeyRefs needs a real target key, not just a
// placeholder.
func sealKeyRef(ref keychain.KeyRef, ownKey, targetKey crypto.Key) (keychain.KeyRef, error) {
	sealed, err := crypto.Encrypt(targetKey, ownKey.Data())
	if err != nil {
		return keychain.KeyRef{}, turtlerr.Wrap(err, "model.sealKeyRef")
	}
	ref.K = sealed
	return ref, nil
}
