// Package keychain implements the mapping from item id to decryption key
// and the key-search protocol (§4.2) that resolves a protected model's key
// from related objects when it isn't already known.
package keychain

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"

	"turtlcore/internal/crypto"
	"turtlcore/internal/turtlerr"
)

var pkgLogger = log.New()

// SetLogger overrides the package-level logger.
func SetLogger(l *log.Logger) { pkgLogger = l }

// Type tags the kind of object a keychain entry (or a model's embedded
// `keys` reference) grants a key for. The wire tag is the single-letter
// form (s/b/u); wireTag and typeFromWireTag convert between the two.
type Type string

const (
	TypeSpace Type = "space"
	TypeBoard Type = "board"
	TypeUser  Type = "user"
)

// wireTag returns the single-letter JSON key used in a model's `keys` array
// entries (`{"s": id, "k": ...}` etc.), per §4.2.
func (t Type) wireTag() string {
	switch t {
	case TypeSpace:
		return "s"
	case TypeBoard:
		return "b"
	case TypeUser:
		return "u"
	default:
		return ""
	}
}

func typeFromWireTag(tag string) (Type, bool) {
	switch tag {
	case "s":
		return TypeSpace, true
	case "b":
		return TypeBoard, true
	case "u":
		return TypeUser, true
	default:
		return "", false
	}
}

// Entry is one keychain record: an item's key, encrypted under the owning
// user's key. Its public fields travel on disk/wire; `K` is private and
// only populated after a successful deserialize.
type Entry struct {
	ID     string
	Type   Type
	ItemID string
	UserID string

	K crypto.Key // private field; empty until deserialized

	// Body holds the envelope-encrypted form of K. Authoritative once the
	// entry has been (re)serialized; superseded by K once deserialized.
	Body []byte
}

// KeyRef is one element of a protected model's `keys` array: a candidate
// encrypted copy of the model's own key, targeted at a specific related
// object's key.
type KeyRef struct {
	ItemID string
	Type   Type
	K      []byte // base64-decoded envelope ciphertext
}

// MarshalMap renders a KeyRef in the wire shape {ty_tag: item_id, "k": b64}.
func (r KeyRef) MarshalMap() map[string]string {
	return map[string]string{
		r.Type.wireTag(): r.ItemID,
		"k":               crypto.ToBase64(r.K),
	}
}

// ParseKeyRef reverses MarshalMap.
func ParseKeyRef(m map[string]string) (KeyRef, error) {
	b64, ok := m["k"]
	if !ok {
		return KeyRef{}, turtlerr.MissingField("keys[].k")
	}
	raw, err := crypto.FromBase64(b64)
	if err != nil {
		return KeyRef{}, turtlerr.Wrap(err, "keychain.ParseKeyRef")
	}
	for tag, id := range m {
		if tag == "k" {
			continue
		}
		ty, ok := typeFromWireTag(tag)
		if !ok {
			continue
		}
		return KeyRef{ItemID: id, Type: ty, K: raw}, nil
	}
	return KeyRef{}, turtlerr.MissingField("keys[].<type tag>")
}

// MarshalJSON renders a KeyRef in spec's wire shape ({ty_tag: item_id, "k":
// b64}) rather than its Go field names, via MarshalMap.
func (r KeyRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.MarshalMap())
}

// UnmarshalJSON parses the wire shape MarshalJSON produces, via ParseKeyRef.
func (r *KeyRef) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return turtlerr.Wrap(err, "keychain.KeyRef.UnmarshalJSON")
	}
	parsed, err := ParseKeyRef(m)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Keychain is the user's private mapping from object id to decryption key.
// Per §3, at most one entry exists per (user_id, item_id) pair — since a
// Keychain always belongs to exactly one logged-in user, that's enforced
// here as "at most one entry per item_id".
type Keychain struct {
	mu      sync.RWMutex
	entries map[string]*Entry // item_id -> entry
}

func New() *Keychain {
	return &Keychain{entries: make(map[string]*Entry)}
}

// Find returns the key for item_id if the keychain has it.
func (kc *Keychain) Find(itemID string) (crypto.Key, bool) {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	e, ok := kc.entries[itemID]
	if !ok || e.K.Empty() {
		return crypto.Key{}, false
	}
	return e.K, true
}

// UpsertKey sets (creating or updating in place) the keychain entry for
// itemID, reusing the existing entry's id if present. This is the path used
// for locally-originated key additions (e.g. after creating a new Space),
// mirroring original_source's `Keychain::upsert_key` — distinct from
// ReplaceEntry, which is used for applying an incoming sync record.
func (kc *Keychain) UpsertKey(itemID string, key crypto.Key, ty Type, userID string, idGen func() (string, error)) error {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	if existing, ok := kc.entries[itemID]; ok {
		existing.K = key
		existing.Type = ty
		existing.UserID = userID
		return nil
	}
	id, err := idGen()
	if err != nil {
		return turtlerr.Wrap(err, "keychain.UpsertKey")
	}
	kc.entries[itemID] = &Entry{ID: id, Type: ty, ItemID: itemID, UserID: userID, K: key}
	return nil
}

// Entry returns the full entry for itemID, if any — used to build the
// protected wire form of a newly added or updated key for local persistence
// (UpsertKey itself only touches the fast in-memory map).
func (kc *Keychain) Entry(itemID string) (*Entry, bool) {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	e, ok := kc.entries[itemID]
	return e, ok
}

// ReplaceEntry fully replaces any existing entry for entry.ItemID (delete
// then insert), the semantics used when applying an incoming keychain sync
// record (MemorySaver for add/edit).
func (kc *Keychain) ReplaceEntry(entry *Entry) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	kc.entries[entry.ItemID] = entry
}

// RemoveEntry deletes the entry for itemID, if any.
func (kc *Keychain) RemoveEntry(itemID string) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	delete(kc.entries, itemID)
}

// All returns a snapshot of every entry, sorted by item id by the caller if
// needed (callers needing determinism — e.g. serializing the whole keychain
// for a change-password call — should sort the result themselves).
func (kc *Keychain) All() []*Entry {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	out := make([]*Entry, 0, len(kc.entries))
	for _, e := range kc.entries {
		out = append(out, e)
	}
	return out
}

// CandidateSource supplies "related object" candidate keys for key search —
// implemented by the in-memory profile (space/board keys already known).
type CandidateSource interface {
	// CandidateKey returns a known key for the given related item id, if any.
	CandidateKey(itemID string) (crypto.Key, bool)
}

// FindKey runs the key-search protocol (§4.2) for a model whose own key is
// not yet known: it tries, for each KeyRef in the model's `keys` array, the
// matching candidate key from either the keychain or the supplied
// candidate source (a Note/Board/Invite's key_search() result), attempting
// to decrypt the ref's ciphertext (which holds the model's 32-byte key)
// under each candidate in turn. The first ciphertext that decrypts wins.
func (kc *Keychain) FindKey(keys []KeyRef, candidates CandidateSource) (crypto.Key, error) {
	for _, ref := range keys {
		var candidate crypto.Key
		var ok bool
		if candidate, ok = kc.Find(ref.ItemID); !ok && candidates != nil {
			candidate, ok = candidates.CandidateKey(ref.ItemID)
		}
		if !ok {
			continue
		}
		plaintext, err := crypto.Decrypt(candidate, ref.K)
		if err != nil {
			if turtlerr.IsAuthentication(err) {
				continue // wrong candidate key, try the next ref
			}
			return crypto.Key{}, turtlerr.Wrap(err, "keychain.FindKey")
		}
		return crypto.NewKey(plaintext), nil
	}
	return crypto.Key{}, turtlerr.NotFound("no keychain entry or candidate decrypted this model's key")
}
