// Package model implements the protected model graph (§4.2-4.3): polymorphic
// encrypted objects with public/private/submodel fields, serialized into the
// crypto envelope and resolved through the keychain's key-search protocol.
package model

import (
	"encoding/json"

	"turtlcore/internal/crypto"
	"turtlcore/internal/keychain"
	"turtlcore/internal/turtlerr"
)

// Base is embedded in every protected model. It carries the fields common to
// the whole graph: the stable id, the envelope-encrypted body, the
// key-search refs, and sync bookkeeping (mod/deleted are surfaced publicly
// by every model type per spec, so they live here rather than being repeated
// per struct).
type Base struct {
	ID      string              `json:"id,omitempty"`
	Body    []byte              `json:"body,omitempty"`
	Keys    []keychain.KeyRef   `json:"keys,omitempty"`
	Mod     int64               `json:"mod,omitempty"`
	Deleted bool                `json:"deleted,omitempty"`

	key crypto.Key // in-memory only; never (de)serialized
}

// Key returns the model's in-memory decryption key, if one has been set by
// Serialize or Deserialize.
func (b *Base) Key() crypto.Key { return b.key }

// SetKey installs an already-known key (e.g. a freshly generated one, or one
// recovered by the caller out of band).
func (b *Base) SetKey(k crypto.Key) { b.key = k }

// Protected is implemented by every encryptable model type. PrivateData
// returns a pointer to the struct holding exactly the model's private
// fields (for json.Marshal/Unmarshal) — the per-type declaration spec.md
// §4.3 calls out as "declares three disjoint field sets at compile time".
type Protected interface {
	ModelBase() *Base
	PrivateData() interface{}
	// KeyRefs computes, for each sharing target this model type defines
	// (e.g. a Note's space + board), the fully sealed entry to store in
	// Keys: the model's own key, encrypted under that target's key. The
	// target keys come from candidates (falling back to nothing found,
	// which simply omits that ref — the object is then only reachable via
	// the keychain, not via key-search).
	KeyRefs(candidates keychain.CandidateSource) ([]keychain.KeyRef, error)
}

// Serialize implements spec.md §4.3's serialize(model): ensures a key is
// present (the caller must have generated one via Base.SetKey for new
// objects), marshals the private-field projection to JSON, AEAD-encrypts it
// under the model key, and recomputes Keys from KeyRefs() against the
// supplied candidates (the sharing targets' keys, e.g. a Note's space and
// board, already known in the profile).
func Serialize(m Protected, candidates keychain.CandidateSource) error {
	base := m.ModelBase()
	if base.key.Empty() {
		return turtlerr.BadValue("model has no key set; generate one before serializing")
	}
	plaintext, err := json.Marshal(m.PrivateData())
	if err != nil {
		return turtlerr.Wrap(err, "model.Serialize")
	}
	body, err := crypto.Encrypt(base.key, plaintext)
	if err != nil {
		return turtlerr.Wrap(err, "model.Serialize")
	}
	base.Body = body

	refs, err := m.KeyRefs(candidates)
	if err != nil {
		return turtlerr.Wrap(err, "model.Serialize")
	}
	base.Keys = refs
	return nil
}

// Deserialize implements spec.md §4.3's deserialize(model): resolves the
// model's key via the keychain, falling back to the key-search protocol
// (§4.2) against candidates — a profile-wide CandidateSource supplying
// every space/board/user key already known in memory, keyed by item id.
// Per §4.2 step 2, "key_search" is really just this lookup restricted to
// the ids the model's own Keys array references, which keychain.FindKey
// already does; models don't need type-specific search logic beyond the
// Keys array they serialized themselves. AEAD-decrypts Body and unmarshals
// the plaintext into PrivateData(). Returns turtlerr.NotFound if no key can
// be resolved, matching the "left encrypted" outcome from §4.2 step 4.
// A model whose key the caller has already installed via SetKey (a
// submodel, given its parent's key by Note.DeserializeWithFile before this
// runs) skips the keychain/key-search lookup entirely and decrypts
// directly under that key — this is how "propagating the key" recurses
// without a submodel needing its own keychain entry.
func Deserialize(m Protected, kc *keychain.Keychain, candidates keychain.CandidateSource) error {
	base := m.ModelBase()
	key := base.key
	if key.Empty() {
		found, ok := kc.Find(base.ID)
		if !ok {
			k, err := kc.FindKey(base.Keys, candidates)
			if err != nil {
				return err
			}
			found = k
		}
		key = found
	}
	if len(base.Body) == 0 {
		base.key = key
		return nil
	}
	plaintext, err := crypto.Decrypt(key, base.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, m.PrivateData()); err != nil {
		return turtlerr.Wrap(err, "model.Deserialize")
	}
	base.key = key
	return nil
}

// MergeFields implements spec.md §4.3's merge_fields: replaces only the
// private fields present in partial (a raw decrypted JSON object from an
// incoming `edit` sync), preserving any field partial omits. It operates
// directly on the model's already-decrypted PrivateData, so it must run
// after Deserialize.
func MergeFields(m Protected, partial []byte) error {
	current, err := json.Marshal(m.PrivateData())
	if err != nil {
		return turtlerr.Wrap(err, "model.MergeFields")
	}
	var currentMap map[string]json.RawMessage
	if err := json.Unmarshal(current, &currentMap); err != nil {
		return turtlerr.Wrap(err, "model.MergeFields")
	}
	var partialMap map[string]json.RawMessage
	if err := json.Unmarshal(partial, &partialMap); err != nil {
		return turtlerr.Wrap(err, "model.MergeFields")
	}
	for k, v := range partialMap {
		currentMap[k] = v
	}
	merged, err := json.Marshal(currentMap)
	if err != nil {
		return turtlerr.Wrap(err, "model.MergeFields")
	}
	if err := json.Unmarshal(merged, m.PrivateData()); err != nil {
		return turtlerr.Wrap(err, "model.MergeFields")
	}
	return nil
}
