package model

import "turtlcore/internal/keychain"

// SpaceMember is server-managed: membership is established via accepted
// Invites, not locally edited, so it carries no private fields of its own.
type SpaceMember struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Space is the top-level container: a Space owns Boards, Notes, and its own
// collection of outstanding Invites (spec.md §3).
type Space struct {
	Base

	OwnerID string        `json:"owner_id"`
	Members []SpaceMember `json:"members,omitempty"`

	private spacePrivate
}

type spacePrivate struct {
	Title string `json:"title"`
	Color string `json:"color,omitempty"`
}

func NewSpace() *Space { return &Space{} }

func (s *Space) ModelBase() *Base          { return &s.Base }
func (s *Space) PrivateData() interface{}  { return &s.private }
func (s *Space) Title() string             { return s.private.Title }
func (s *Space) SetTitle(title string)     { s.private.Title = title }
func (s *Space) Color() string             { return s.private.Color }
func (s *Space) SetColor(color string)     { s.private.Color = color }

// KeyRefs is empty: a Space's key lives directly in the owning user's
// keychain (added there on creation/join), with no parent object to share
// it through — it is the root of the containment graph.
func (s *Space) KeyRefs(keychain.CandidateSource) ([]keychain.KeyRef, error) { return nil, nil }
