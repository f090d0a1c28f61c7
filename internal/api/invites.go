package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// InviteResponse is the success body shared by the invite-mutation
// endpoints: the server's sync_ids for the resulting space-membership
// change (spec.md §6).
type InviteResponse struct {
	SyncIDs []int64 `json:"sync_ids"`
}

// SendInvite implements POST /spaces/{id}/invites: the invite record is
// already sealed (its Message field holds the space key encrypted to the
// invitee's pubkey) before it reaches this call.
func (c *Client) SendInvite(ctx context.Context, spaceID string, invite json.RawMessage) (*InviteResponse, error) {
	var resp InviteResponse
	path := fmt.Sprintf("/spaces/%s/invites", spaceID)
	if err := c.post(ctx, path, invite, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AcceptInvite implements POST /spaces/{id}/invites/accepted/{invite_id}.
func (c *Client) AcceptInvite(ctx context.Context, spaceID, inviteID string) (*InviteResponse, error) {
	var resp InviteResponse
	path := fmt.Sprintf("/spaces/%s/invites/accepted/%s", spaceID, inviteID)
	if err := c.post(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EditInvite implements PUT /spaces/{id}/invites/{invite_id} (e.g.
// changing a pending invite's role before it's accepted).
func (c *Client) EditInvite(ctx context.Context, spaceID, inviteID string, invite json.RawMessage) (*InviteResponse, error) {
	var resp InviteResponse
	path := fmt.Sprintf("/spaces/%s/invites/%s", spaceID, inviteID)
	if err := c.put(ctx, path, invite, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteInvite implements DELETE /spaces/{id}/invites/{invite_id}.
func (c *Client) DeleteInvite(ctx context.Context, spaceID, inviteID string) error {
	return c.delete(ctx, fmt.Sprintf("/spaces/%s/invites/%s", spaceID, inviteID))
}

// EditMember implements PUT /spaces/{id}/members/{user_id} (role change
// for an already-accepted member).
func (c *Client) EditMember(ctx context.Context, spaceID, userID string, member json.RawMessage) (*InviteResponse, error) {
	var resp InviteResponse
	path := fmt.Sprintf("/spaces/%s/members/%s", spaceID, userID)
	if err := c.put(ctx, path, member, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveMember implements DELETE /spaces/{id}/members/{user_id}.
func (c *Client) RemoveMember(ctx context.Context, spaceID, userID string) error {
	return c.delete(ctx, fmt.Sprintf("/spaces/%s/members/%s", spaceID, userID))
}
