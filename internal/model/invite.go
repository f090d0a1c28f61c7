package model

import "turtlcore/internal/keychain"

// Invite is a sealed handoff from one user to another granting membership
// in a space (spec.md §3). Its private Message field is an opaque byte blob
// whose plaintext is the target space's key, sealed asymmetrically (not via
// the symmetric keychain/keys[] mechanism) so the recipient can open it
// before they have any shared symmetric key with the sender.
type Invite struct {
	Base

	SpaceID              string `json:"space_id"`
	FromUserID           string `json:"from_user_id"`
	FromUsername         string `json:"from_username"`
	ToUser               string `json:"to_user"`
	Role                 string `json:"role"`
	IsPassphraseProtected bool  `json:"is_passphrase_protected"`
	IsPubkeyProtected    bool   `json:"is_pubkey_protected"`
	Title                string `json:"title"`

	private invitePrivate
}

type invitePrivate struct {
	Message []byte `json:"message,omitempty"`
}

func NewInvite() *Invite { return &Invite{} }

func (i *Invite) ModelBase() *Base         { return &i.Base }
func (i *Invite) PrivateData() interface{} { return &i.private }
func (i *Invite) Message() []byte          { return i.private.Message }
func (i *Invite) SetMessage(msg []byte)    { i.private.Message = msg }

// KeyRefs is empty: an Invite's message payload is sealed asymmetrically
// against the invitee's pubkey (see internal/crypto's SealBox), not shared
// through the keys[] array.
func (i *Invite) KeyRefs(keychain.CandidateSource) ([]keychain.KeyRef, error) { return nil, nil }
