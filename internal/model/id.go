package model

import "github.com/google/uuid"

// NewID generates the stable opaque id every persisted model must carry
// before any outgoing sync (spec.md §3's global invariant).
func NewID() string {
	return uuid.NewString()
}
