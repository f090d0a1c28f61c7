package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// JoinResponse is POST /users' success body (spec.md §6).
type JoinResponse struct {
	ID        string          `json:"id"`
	StorageMB int64           `json:"storage_mb"`
	Data      json.RawMessage `json:"data"`
}

// Join implements POST /users: account creation, sending the already-
// encrypted user body along with the derived auth token.
func (c *Client) Join(ctx context.Context, user, auth json.RawMessage) (*JoinResponse, error) {
	body := struct {
		User json.RawMessage `json:"user"`
		Auth json.RawMessage `json:"auth"`
	}{User: user, Auth: auth}
	var resp JoinResponse
	if err := c.post(ctx, "/users", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangePasswordResponse is PUT /users/{id}'s success body.
type ChangePasswordResponse struct {
	SyncIDs []int64 `json:"sync_ids"`
}

// ChangePassword implements PUT /users/{id}: re-keys the account, sending
// the re-encrypted user body, new auth token, and re-wrapped keychain.
func (c *Client) ChangePassword(ctx context.Context, userID string, user, auth, keychain json.RawMessage) (*ChangePasswordResponse, error) {
	body := struct {
		User     json.RawMessage `json:"user"`
		Auth     json.RawMessage `json:"auth"`
		Keychain json.RawMessage `json:"keychain"`
	}{User: user, Auth: auth, Keychain: keychain}
	var resp ChangePasswordResponse
	path := fmt.Sprintf("/users/%s", userID)
	if err := c.put(ctx, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteAccount implements DELETE /users/{id}.
func (c *Client) DeleteAccount(ctx context.Context, userID string) error {
	return c.delete(ctx, fmt.Sprintf("/users/%s", userID))
}

// UserByEmail is GET /users/email/{email}'s success body: enough of
// another user's public record to invite them into a space.
type UserByEmail struct {
	ID     string `json:"id"`
	Pubkey string `json:"pubkey"`
}

// GetUserByEmail implements GET /users/email/{email} (space invites need
// the invitee's pubkey to seal the space key to them).
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*UserByEmail, error) {
	var resp UserByEmail
	path := fmt.Sprintf("/users/email/%s", email)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendFeedback implements POST /feedback.
func (c *Client) SendFeedback(ctx context.Context, body string) error {
	payload := struct {
		Body string `json:"body"`
	}{Body: body}
	var ok bool
	return c.post(ctx, "/feedback", payload, &ok)
}
