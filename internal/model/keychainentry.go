package model

import (
	"turtlcore/internal/crypto"
	"turtlcore/internal/keychain"
)

// KeychainEntry is the on-disk/wire protected form of a keychain.Entry: like
// every other model it is itself encrypted, under the current user's own
// key, so a keychain entry's `k` only exists in the clear in memory after
// deserialize. The in-memory internal/keychain.Keychain is the fast lookup
// structure this gets loaded into/persisted from.
type KeychainEntry struct {
	Base

	Type   string `json:"type"`
	ItemID string `json:"item_id"`
	UserID string `json:"user_id"`

	private keychainEntryPrivate
}

type keychainEntryPrivate struct {
	K []byte `json:"k,omitempty"`
}

func NewKeychainEntry() *KeychainEntry { return &KeychainEntry{} }

func (k *KeychainEntry) ModelBase() *Base         { return &k.Base }
func (k *KeychainEntry) PrivateData() interface{} { return &k.private }

// KeyRefs is empty: a KeychainEntry's key is the user's own root key,
// already in the keychain's own possession — it has no further sharing
// target.
func (k *KeychainEntry) KeyRefs(keychain.CandidateSource) ([]keychain.KeyRef, error) {
	return nil, nil
}

// ToRuntimeEntry converts a deserialized KeychainEntry into the fast
// in-memory form used by internal/keychain.Keychain.
func (k *KeychainEntry) ToRuntimeEntry() *keychain.Entry {
	ty, _ := keychainTypeFromString(k.Type)
	return &keychain.Entry{
		ID:     k.Base.ID,
		Type:   ty,
		ItemID: k.ItemID,
		UserID: k.UserID,
		K:      crypto.NewKey(k.private.K),
	}
}

// FromRuntimeEntry builds the protected wire form of a runtime keychain
// entry, ready for Serialize under rootKey (a keychain entry self-encrypts
// under the owning user's root key, not under any key of its own — the
// same rule loadKeychain's "the user's own root key, already known, unlocks
// every entry" comment relies on for the reverse direction).
func FromRuntimeEntry(e *keychain.Entry, rootKey crypto.Key) *KeychainEntry {
	k := NewKeychainEntry()
	k.Base.ID = e.ID
	k.Base.SetKey(rootKey)
	k.Type = string(e.Type)
	k.ItemID = e.ItemID
	k.UserID = e.UserID
	k.private.K = e.K.Data()
	return k
}

func keychainTypeFromString(s string) (keychain.Type, bool) {
	switch s {
	case "space":
		return keychain.TypeSpace, true
	case "board":
		return keychain.TypeBoard, true
	case "user":
		return keychain.TypeUser, true
	default:
		return "", false
	}
}
