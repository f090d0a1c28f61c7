package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"turtlcore/internal/sync"
	"turtlcore/internal/turtlerr"
)

// longPollTimeout bounds a single long-poll GET /sync request (spec.md
// §4.8: "up to 60s"); kept a little above the server's own wait so a
// server-side timeout response, not a client-side cancellation, is what
// ordinarily ends the call.
const longPollTimeout = 65 * time.Second

var _ sync.Client = (*Client)(nil)

// PostSync implements sync.Client: batches outgoing records to POST /sync.
func (c *Client) PostSync(ctx context.Context, records []*sync.Record) (*sync.PostSyncResponse, error) {
	var resp sync.PostSyncResponse
	if err := c.post(ctx, "/sync", records, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSync implements sync.Client: GET /sync?sync_id=&immediate=, long-polling
// when poll is true (spec.md §4.8 step 1).
func (c *Client) GetSync(ctx context.Context, cursor int64, poll bool) (*sync.GetSyncResponse, error) {
	immediate := "1"
	if poll {
		immediate = "0"
	}
	path := fmt.Sprintf("/sync?sync_id=%d&immediate=%s", cursor, immediate)
	if poll {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, longPollTimeout)
		defer cancel()
	}
	var resp sync.GetSyncResponse
	// A long-poll timeout surfaces from do() as turtlerr.TryAgain() directly
	// (spec.md §4.8 step 1: "Timeout -> no-op, keep cursor").
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSyncFull implements sync.Client: GET /sync/full (spec.md §4.8 step 4).
func (c *Client) GetSyncFull(ctx context.Context) (*sync.GetSyncResponse, error) {
	var resp sync.GetSyncResponse
	if err := c.get(ctx, "/sync/full", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadAttachment implements sync.Client: PUT /notes/{id}/attachment with
// the raw ciphertext blob (spec.md §4.9's outgoing file transfer).
func (c *Client) UploadAttachment(ctx context.Context, noteID string, blob []byte) ([]int64, error) {
	var resp struct {
		SyncIDs []int64 `json:"sync_ids"`
	}
	path := fmt.Sprintf("/notes/%s/attachment", noteID)
	if err := c.put(ctx, path, blob, &resp); err != nil {
		return nil, err
	}
	return resp.SyncIDs, nil
}

// AttachmentURL implements sync.Client: GET /notes/{id}/attachment returns
// a URL string to stream bytes from.
func (c *Client) AttachmentURL(ctx context.Context, noteID string) (string, error) {
	var url string
	path := fmt.Sprintf("/notes/%s/attachment", noteID)
	if err := c.get(ctx, path, &url); err != nil {
		return "", err
	}
	return url, nil
}

// StreamAttachment GETs the bytes at a (typically pre-signed) URL returned
// by AttachmentURL, for the incoming file-transfer worker to copy into the
// local file store (spec.md §4.9).
func (c *Client) StreamAttachment(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, turtlerr.Wrap(err, "api.Client.StreamAttachment")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, turtlerr.IO("api.Client.StreamAttachment: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, turtlerr.API(resp.StatusCode, string(body))
	}
	return resp.Body, nil
}
