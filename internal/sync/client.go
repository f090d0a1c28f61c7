package sync

import (
	"context"
	"io"
)

// PostSyncResponse is the shape POST /sync returns (spec.md §6): a batch of
// accepted records (each now carrying server-assigned sync ids) and a batch
// of rejected ones (each carrying an Error).
type PostSyncResponse struct {
	Success  []*Record
	Failures []*Record
}

// GetSyncResponse is the shape GET /sync and GET /sync/full return: the
// records new since the caller's cursor, plus the cursor to advance to.
type GetSyncResponse struct {
	Records []*Record
	SyncID  int64
}

// Client is everything the outgoing/incoming workers need from the Turtl
// server's sync-related HTTP surface (spec.md §6). A concrete
// implementation lives in internal/api; workers here depend only on this
// interface so they can be driven by a stub in tests. GetSync must map a
// long-poll timeout to a turtlerr.TryAgain() error (spec.md §4.8 step 1:
// "timeout -> no-op, keep cursor") rather than treating it as a real
// failure.
type Client interface {
	PostSync(ctx context.Context, records []*Record) (*PostSyncResponse, error)
	GetSync(ctx context.Context, cursor int64, poll bool) (*GetSyncResponse, error)
	GetSyncFull(ctx context.Context) (*GetSyncResponse, error)

	// UploadAttachment PUTs the given ciphertext blob to a note's attachment
	// endpoint, returning any server-assigned sync ids (spec.md §4.9/§6).
	UploadAttachment(ctx context.Context, noteID string, blob []byte) ([]int64, error)

	// AttachmentURL fetches the URL to stream a note's attachment bytes
	// from (spec.md §4.9's incoming file transfer).
	AttachmentURL(ctx context.Context, noteID string) (string, error)

	// StreamAttachment GETs the bytes at a URL returned by AttachmentURL.
	StreamAttachment(ctx context.Context, url string) (io.ReadCloser, error)
}
