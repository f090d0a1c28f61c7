package sync

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"turtlcore/internal/turtlerr"
)

func TestFilesIncomingDownloadsAndDeletesRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := NewFilesIncomingQueue(s)
	if err := q.Enqueue(ctx, &Record{ID: "dl-1", ItemID: "note-1", Type: TypeFileIncoming}, 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	files := NewFileStore(t.TempDir())
	client := &stubClient{
		attachURLFn: func(ctx context.Context, noteID string) (string, error) {
			if noteID != "note-1" {
				t.Fatalf("AttachmentURL called with %q", noteID)
			}
			return "https://example.test/attachment", nil
		},
		streamAttFn: func(ctx context.Context, url string) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("ciphertext bytes")), nil
		},
	}

	w := NewFilesIncoming(q, client, files, "user-1")
	if err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := files.Read("user-1", "note-1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "ciphertext bytes" {
		t.Fatalf("got %q, want %q", got, "ciphertext bytes")
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected the record removed after a successful download, got %+v", pending)
	}

	if _, err := os.Stat(filepath.Join(files.path("user-1", "note-1") + ".partial")); !os.IsNotExist(err) {
		t.Fatalf("expected no leftover .partial file, stat err = %v", err)
	}
}

func TestFilesIncomingEmitsDownloadedEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := NewFilesIncomingQueue(s)
	if err := q.Enqueue(ctx, &Record{ID: "dl-1", ItemID: "note-1", Type: TypeFileIncoming}, 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	files := NewFileStore(t.TempDir())
	client := &stubClient{
		attachURLFn: func(ctx context.Context, noteID string) (string, error) {
			return "https://example.test/attachment", nil
		},
		streamAttFn: func(ctx context.Context, url string) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("ciphertext bytes")), nil
		},
	}

	sink := &fakeEventSink{}
	w := NewFilesIncoming(q, client, files, "user-1")
	w.Events = sink
	if err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(sink.events) != 1 || sink.events[0].name != "sync:file:downloaded" || sink.events[0].payload != "note-1" {
		t.Fatalf("expected a single sync:file:downloaded event for note-1, got %+v", sink.events)
	}
}

func TestFilesIncomingRetainsRecordOnFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := NewFilesIncomingQueue(s)
	if err := q.Enqueue(ctx, &Record{ID: "dl-1", ItemID: "note-1", Type: TypeFileIncoming}, 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	files := NewFileStore(t.TempDir())
	client := &stubClient{
		attachURLFn: func(ctx context.Context, noteID string) (string, error) {
			return "", turtlerr.IO("boom")
		},
	}

	w := NewFilesIncoming(q, client, files, "user-1")
	if err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce should swallow per-record errors, got %v", err)
	}

	rec, ok, err := q.Get(ctx, "dl-1")
	if err != nil || !ok {
		t.Fatalf("expected the record to remain on the queue, ok=%v err=%v", ok, err)
	}
	if rec.Errcount != 1 {
		t.Fatalf("expected errcount incremented to 1, got %d", rec.Errcount)
	}
}
