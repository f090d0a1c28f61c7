package model

import "turtlcore/internal/keychain"

// User is the logged-in identity. Its asymmetric keypair (Pubkey/privkey)
// backs Invite sealed-box handoffs (spec.md §4.1's asymmetric key exchange).
type User struct {
	Base

	Username  string `json:"username"`
	StorageMB int64  `json:"storage_mb,omitempty"`
	Name      string `json:"name,omitempty"`
	Pubkey    []byte `json:"pubkey,omitempty"`

	private userPrivate
}

type userPrivate struct {
	Settings map[string]string `json:"settings,omitempty"`
	Privkey  []byte            `json:"privkey,omitempty"`
}

func NewUser() *User { return &User{} }

func (u *User) ModelBase() *Base         { return &u.Base }
func (u *User) PrivateData() interface{} { return &u.private }
func (u *User) Privkey() []byte          { return u.private.Privkey }
func (u *User) SetPrivkey(pk []byte)     { u.private.Privkey = pk }

// KeyRefs is empty: a User's own key never travels inside another model's
// keys[] array — it's derived straight from the login password (§4.1), not
// discovered via key-search.
func (u *User) KeyRefs(keychain.CandidateSource) ([]keychain.KeyRef, error) { return nil, nil }
