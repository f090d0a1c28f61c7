// Package profile implements the in-memory profile (§4.4's decrypted view
// plus §4.8's MemorySaver target): the logged-in user, keychain, and every
// decrypted Space/Board/Note/Invite held in memory for the dispatch thread,
// backed by the local store and kept in step with the search index.
package profile

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"

	"turtlcore/internal/crypto"
	"turtlcore/internal/keychain"
	"turtlcore/internal/model"
	"turtlcore/internal/search"
	"turtlcore/internal/store"
	"turtlcore/internal/turtlerr"
)

// decodeInto unmarshals a raw stored object (its public-projection-plus-
// body JSON, per store.Store.Save's input contract) into the target
// Protected model's exported fields. Private fields are never touched
// here — they only become reachable after model.Deserialize succeeds.
func decodeInto(raw []byte, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return turtlerr.Wrap(err, "profile: decoding stored object")
	}
	return nil
}

var pkgLogger = log.New()

// SetLogger overrides the package-level logger.
func SetLogger(l *log.Logger) { pkgLogger = l }

// Table names the local store uses for each model type (spec.md §4.4's
// object table is keyed by an arbitrary `tbl` string; these are this
// rewrite's choices, not wire values).
const (
	TableUsers    = "users"
	TableKeychain = "keychain"
	TableSpaces   = "spaces"
	TableBoards   = "boards"
	TableNotes    = "notes"
	TableInvites  = "invites"
)

// Schema is the store.Schema this package requires: on the notes table, one
// multi-value index per query spec.md §4.5 names (board/tag/type/color/
// has_file) plus a by-space index; on the boards table, a by-space index.
func Schema() store.Schema {
	return store.Schema{
		TableNotes: []store.IndexDef{
			{Name: "by_board", Fields: []string{"board_id"}},
			{Name: "by_tag", Fields: []string{"tags"}},
			{Name: "by_type", Fields: []string{"type"}},
			{Name: "by_color", Fields: []string{"color"}},
			{Name: "by_has_file", Fields: []string{"has_file"}},
			{Name: "by_space", Fields: []string{"space_id"}},
		},
		TableBoards: []store.IndexDef{
			{Name: "by_space", Fields: []string{"space_id"}},
		},
	}
}

// Profile is the decrypted, in-memory view of one logged-in user's data.
// Owned exclusively by the dispatch thread (spec.md §5): sync workers never
// touch it directly, only through the Applier/Dispatcher boundary in
// internal/sync.
type Profile struct {
	mu sync.RWMutex

	store *store.Store
	kc    *keychain.Keychain

	user    *model.User
	spaces  map[string]*model.Space
	boards  map[string]*model.Board
	notes   map[string]*model.Note
	invites map[string]*model.Invite

	structured *search.StructuredIndex
	fulltext   *search.FullTextIndex
}

// New builds an empty profile bound to an already-open store.
func New(s *store.Store) *Profile {
	return &Profile{
		store:      s,
		kc:         keychain.New(),
		spaces:     make(map[string]*model.Space),
		boards:     make(map[string]*model.Board),
		notes:      make(map[string]*model.Note),
		invites:    make(map[string]*model.Invite),
		structured: search.NewStructuredIndex(),
		fulltext:   search.NewFullTextIndex(),
	}
}

func (p *Profile) Keychain() *keychain.Keychain { return p.kc }

// CandidateKey implements keychain.CandidateSource: every space/board key
// this profile already holds in its own keychain is a valid key-search
// candidate for a model referencing it (spec.md §4.2).
func (p *Profile) CandidateKey(itemID string) (crypto.Key, bool) {
	return p.kc.Find(itemID)
}

// SetUser installs the logged-in user (called once, on login/join).
func (p *Profile) SetUser(u *model.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = u
}

// User returns the logged-in user, or nil before login completes.
func (p *Profile) User() *model.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.user
}

// Space/Board/Note/Invite are read accessors over the in-memory maps,
// keyed by id; ok is false if the object isn't loaded (not found, or still
// encrypted because its key hasn't been discovered yet).
func (p *Profile) Space(id string) (*model.Space, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.spaces[id]
	return s, ok
}

func (p *Profile) Board(id string) (*model.Board, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.boards[id]
	return b, ok
}

func (p *Profile) Note(id string) (*model.Note, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.notes[id]
	return n, ok
}

func (p *Profile) Invite(id string) (*model.Invite, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, ok := p.invites[id]
	return i, ok
}

// Spaces returns every loaded space, sorted by id for deterministic
// `profile:load` responses.
func (p *Profile) Spaces() []*model.Space {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*model.Space, 0, len(p.spaces))
	for _, s := range p.spaces {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Boards returns every loaded board belonging to spaceID, sorted by id.
func (p *Profile) Boards(spaceID string) []*model.Board {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*model.Board
	for _, b := range p.boards {
		if b.SpaceID == spaceID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Query returns a fresh search.Query over this profile's current indexes
// (spec.md §4.5), for `profile:find-notes`.
func (p *Profile) Query() *search.Query {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return search.NewQuery(p.structured, p.fulltext)
}

// NotesByIDs resolves a set of ids (typically a search.Query's Results())
// into their in-memory Note objects, dropping any not currently loaded,
// sorted by id.
func (p *Profile) NotesByIDs(ids []string) []*model.Note {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*model.Note, 0, len(ids))
	for _, id := range ids {
		if n, ok := p.notes[id]; ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Load bootstraps the in-memory profile from the local store: the
// keychain first (every other type's key-search depends on it), then
// spaces, boards, and notes, each attempted-decrypted against the
// keychain and the profile's own CandidateSource. An object whose key
// can't yet be resolved is skipped (spec.md §4.2 step 4: "left encrypted");
// it will surface once a later incoming sync supplies the missing key.
func (p *Profile) Load(ctx context.Context) error {
	if err := p.loadKeychain(ctx); err != nil {
		return err
	}
	if err := p.loadSpaces(ctx); err != nil {
		return err
	}
	if err := p.loadBoards(ctx); err != nil {
		return err
	}
	if err := p.loadInvites(ctx); err != nil {
		return err
	}
	return p.loadNotes(ctx)
}

func (p *Profile) loadKeychain(ctx context.Context) error {
	rows, err := p.store.All(ctx, TableKeychain)
	if err != nil {
		return turtlerr.Wrap(err, "profile.Profile.Load: loading keychain")
	}
	for _, raw := range rows {
		entry := model.NewKeychainEntry()
		if err := decodeInto(raw, entry); err != nil {
			return err
		}
		// the user's own root key, already known, unlocks every entry.
		if err := model.Deserialize(entry, p.kc, p); err != nil {
			if turtlerr.IsNotFound(err) {
				continue
			}
			return turtlerr.Wrap(err, "profile.Profile.Load: decrypting keychain entry "+entry.ID)
		}
		p.kc.ReplaceEntry(entry.ToRuntimeEntry())
	}
	return nil
}

func (p *Profile) loadSpaces(ctx context.Context) error {
	rows, err := p.store.All(ctx, TableSpaces)
	if err != nil {
		return turtlerr.Wrap(err, "profile.Profile.Load: loading spaces")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, raw := range rows {
		s := model.NewSpace()
		if err := decodeInto(raw, s); err != nil {
			return err
		}
		if err := model.Deserialize(s, p.kc, p); err != nil {
			if turtlerr.IsNotFound(err) {
				continue
			}
			return turtlerr.Wrap(err, "profile.Profile.Load: decrypting space "+s.ID)
		}
		p.spaces[s.ID] = s
	}
	return nil
}

func (p *Profile) loadBoards(ctx context.Context) error {
	rows, err := p.store.All(ctx, TableBoards)
	if err != nil {
		return turtlerr.Wrap(err, "profile.Profile.Load: loading boards")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, raw := range rows {
		b := model.NewBoard()
		if err := decodeInto(raw, b); err != nil {
			return err
		}
		if err := model.Deserialize(b, p.kc, p); err != nil {
			if turtlerr.IsNotFound(err) {
				continue
			}
			return turtlerr.Wrap(err, "profile.Profile.Load: decrypting board "+b.ID)
		}
		p.boards[b.ID] = b
	}
	return nil
}

func (p *Profile) loadInvites(ctx context.Context) error {
	rows, err := p.store.All(ctx, TableInvites)
	if err != nil {
		return turtlerr.Wrap(err, "profile.Profile.Load: loading invites")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, raw := range rows {
		i := model.NewInvite()
		if err := decodeInto(raw, i); err != nil {
			return err
		}
		// an Invite's Message is asymmetrically sealed, not key-search'd;
		// it stays as-is here and is opened explicitly on accept.
		p.invites[i.ID] = i
	}
	return nil
}

func (p *Profile) loadNotes(ctx context.Context) error {
	rows, err := p.store.All(ctx, TableNotes)
	if err != nil {
		return turtlerr.Wrap(err, "profile.Profile.Load: loading notes")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, raw := range rows {
		n := model.NewNote()
		if err := decodeInto(raw, n); err != nil {
			return err
		}
		if err := n.DeserializeWithFile(p.kc, p); err != nil {
			if turtlerr.IsNotFound(err) {
				continue
			}
			return turtlerr.Wrap(err, "profile.Profile.Load: decrypting note "+n.ID)
		}
		p.notes[n.ID] = n
		p.indexNoteLocked(n)
	}
	return nil
}

// indexNoteLocked rebuilds a note's structured+full-text index entries.
// Caller must hold p.mu.
func (p *Profile) indexNoteLocked(n *model.Note) {
	var boardIDs []string
	if n.BoardID != nil {
		boardIDs = []string{*n.BoardID}
	}
	p.structured.Index(search.NoteRecord{
		ID:      n.ID,
		HasFile: n.HasFile,
		Mod:     n.Mod,
		Type:    n.Type(),
		Color:   strconv.FormatInt(n.Color(), 10),
		Boards:  boardIDs,
		Tags:    n.Tags(),
	})
	_ = p.fulltext.Index(n.ID, n.Title()+" "+n.Text())
}
