package api

import (
	"context"

	"turtlcore/internal/crypto"
	"turtlcore/internal/turtlerr"
)

// CurrentAuthVersion is the newest auth-derivation generation a client
// offers on login (spec.md §4.1).
const CurrentAuthVersion = 6

// authProbeResponse is POST /auth's success body: just the matched user id.
type authProbeResponse struct {
	ID string `json:"id"`
}

// Login derives the auth token at decreasing versions (CurrentAuthVersion
// down to 0), probing POST /auth with each until the server accepts one or
// every version has been tried, per spec.md §4.1: "Login retries version
// N-1 on 401 down to version 0, then gives up." On success it also primes
// the client's Authorization header for subsequent requests, and returns
// the version that was accepted — a caller deriving the user's own root
// key (crypto.DeriveRootKey) must use this same version, since the KDF
// params/salt shape are versioned identically to the auth token.
func (c *Client) Login(ctx context.Context, username, password string, cpu, mem uint32) (string, uint16, error) {
	var lastErr error
	for ver := CurrentAuthVersion; ver >= 0; ver-- {
		token, err := crypto.DeriveAuthToken(username, password, uint16(ver), cpu, mem)
		if err != nil {
			return "", 0, turtlerr.Wrap(err, "api.Client.Login: deriving auth token")
		}

		probe := *c
		probe.SetAuth(username, token)

		var resp authProbeResponse
		err = probe.post(ctx, "/auth", nil, &resp)
		if err == nil {
			c.SetAuth(username, token)
			return resp.ID, uint16(ver), nil
		}
		if apiErr, ok := err.(*turtlerr.Error); ok && apiErr.Kind == turtlerr.KindAPI && apiErr.Status == 401 {
			lastErr = err
			continue
		}
		return "", 0, turtlerr.Wrap(err, "api.Client.Login")
	}
	if lastErr == nil {
		lastErr = turtlerr.Authentication("api.Client.Login: no auth versions to try")
	}
	return "", 0, turtlerr.Wrap(lastErr, "api.Client.Login: exhausted all auth versions")
}
