// Package sync implements the sync queue/record type (spec.md §4.6) and the
// outgoing/incoming workers that move changes between the local store and
// the Turtl server (spec.md §4.7/§4.8).
package sync

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

var pkgLogger = log.New()

// SetLogger overrides the package-level logger.
func SetLogger(l *log.Logger) { pkgLogger = l }

// MaxAllowedFailures is the errcount threshold above which a sync record is
// frozen (spec.md §4.6: "when errcount > 3, set frozen=true").
const MaxAllowedFailures = 3

// Action is the change kind a sync record describes.
type Action string

const (
	ActionAdd        Action = "add"
	ActionEdit       Action = "edit"
	ActionDelete     Action = "delete"
	ActionMoveSpace  Action = "move-space"
	ActionChangePass Action = "change-password"
)

// Type is the target model kind a sync record applies to.
type Type string

const (
	TypeUser         Type = "user"
	TypeKeychain     Type = "keychain"
	TypeSpace        Type = "space"
	TypeBoard        Type = "board"
	TypeNote         Type = "note"
	TypeFile         Type = "file"
	TypeFileIncoming Type = "file:incoming"
	TypeInvite       Type = "invite"
)

// Error is the structured failure a server-rejected sync record carries.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Record is the unit of change spec.md §4.6 describes: entirely public
// fields (its `Data` carries whatever opaque encrypted body the underlying
// model produced), so unlike Space/Board/Note it is persisted as plain JSON
// rather than run through the protected-model AEAD engine — there is
// nothing left to encrypt once every field is public.
type Record struct {
	ID     string `json:"id"`
	Action Action `json:"action"`
	ItemID string `json:"item_id"`
	UserID string `json:"user_id"`
	Type   Type   `json:"type"`

	SyncIDs []int64         `json:"sync_ids,omitempty"`
	Missing bool            `json:"missing,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Err     *Error          `json:"error,omitempty"`

	Errcount int64 `json:"errcount"`
	Frozen   bool  `json:"frozen"`

	// CreatedAt orders the FIFO queue (spec.md §4.6: "index by creation
	// order"); record ids are opaque identifiers, not necessarily
	// time-sortable, so ordering is tracked explicitly.
	CreatedAt int64 `json:"created_at"`
}

// ShallowClone copies only the identifying fields of a record (action, item
// id, user id, type), leaving data/errors/counters at their zero value.
func (r *Record) ShallowClone() *Record {
	return &Record{
		Action: r.Action,
		ItemID: r.ItemID,
		UserID: r.UserID,
		Type:   r.Type,
	}
}

// IsFileAdd reports whether this record belongs on the file-outgoing queue
// rather than the ordinary model-sync batch (spec.md §4.7 step 1).
func (r *Record) IsFileAdd() bool {
	return r.Type == TypeFile && r.Action == ActionAdd
}
