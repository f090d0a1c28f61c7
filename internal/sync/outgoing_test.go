package sync

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"turtlcore/internal/store"
	"turtlcore/internal/turtlerr"
)

type stubClient struct {
	postSyncFn    func(ctx context.Context, records []*Record) (*PostSyncResponse, error)
	getSyncFn     func(ctx context.Context, cursor int64, poll bool) (*GetSyncResponse, error)
	getFullFn     func(ctx context.Context) (*GetSyncResponse, error)
	uploadFn      func(ctx context.Context, noteID string, blob []byte) ([]int64, error)
	attachURLFn   func(ctx context.Context, noteID string) (string, error)
	streamAttFn   func(ctx context.Context, url string) (io.ReadCloser, error)
}

func (s *stubClient) PostSync(ctx context.Context, records []*Record) (*PostSyncResponse, error) {
	return s.postSyncFn(ctx, records)
}
func (s *stubClient) GetSync(ctx context.Context, cursor int64, poll bool) (*GetSyncResponse, error) {
	return s.getSyncFn(ctx, cursor, poll)
}
func (s *stubClient) GetSyncFull(ctx context.Context) (*GetSyncResponse, error) {
	return s.getFullFn(ctx)
}
func (s *stubClient) UploadAttachment(ctx context.Context, noteID string, blob []byte) ([]int64, error) {
	return s.uploadFn(ctx, noteID, blob)
}
func (s *stubClient) AttachmentURL(ctx context.Context, noteID string) (string, error) {
	if s.attachURLFn != nil {
		return s.attachURLFn(ctx, noteID)
	}
	return "", turtlerr.NotImplemented("AttachmentURL")
}
func (s *stubClient) StreamAttachment(ctx context.Context, url string) (io.ReadCloser, error) {
	if s.streamAttFn != nil {
		return s.streamAttFn(ctx, url)
	}
	return nil, turtlerr.NotImplemented("StreamAttachment")
}

type fakeEventSink struct {
	events []fakeEvent
}

type fakeEvent struct {
	name    string
	payload interface{}
}

func (f *fakeEventSink) Emit(name string, payload interface{}) {
	f.events = append(f.events, fakeEvent{name: name, payload: payload})
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "turtl.db"), store.Schema{})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOutgoingRunOnceDeletesSuccessesAndFreezesFailures(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := NewQueue(s)
	ig := NewIgnoreSet(s)

	if err := q.Enqueue(ctx, &Record{ID: "ok-1", Action: ActionAdd, Type: TypeNote, UserID: "u1"}, 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, &Record{ID: "bad-1", Action: ActionEdit, Type: TypeNote, UserID: "u1"}, 2); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	client := &stubClient{
		postSyncFn: func(ctx context.Context, records []*Record) (*PostSyncResponse, error) {
			var resp PostSyncResponse
			for _, r := range records {
				switch r.ID {
				case "ok-1":
					r.SyncIDs = []int64{500}
					resp.Success = append(resp.Success, r)
				default:
					resp.Failures = append(resp.Failures, r)
				}
			}
			return &resp, nil
		},
	}

	worker := NewOutgoing(q, ig, client, NewFileStore(t.TempDir()), "u1")
	if err := worker.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if _, ok, _ := q.Get(ctx, "ok-1"); ok {
		t.Fatalf("expected ok-1 deleted from queue")
	}
	bad, ok, err := q.Get(ctx, "bad-1")
	if err != nil || !ok {
		t.Fatalf("expected bad-1 to remain queued: %v %v", ok, err)
	}
	if bad.Errcount != 1 {
		t.Fatalf("expected errcount=1, got %d", bad.Errcount)
	}

	filtered, err := ig.FilterOut(ctx, []*Record{{ID: "500"}})
	if err != nil {
		t.Fatalf("FilterOut: %v", err)
	}
	if len(filtered) != 0 {
		t.Fatalf("expected sync id 500 to be in the ignore set, got %+v", filtered)
	}
}

func TestOutgoingUploadFileDrops404AsSuccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := NewQueue(s)
	ig := NewIgnoreSet(s)
	dataDir := t.TempDir()
	files := NewFileStore(dataDir)
	if err := files.WriteStream("u1", "note-1", strings.NewReader("ciphertext")); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if err := q.Enqueue(ctx, &Record{ID: "file-1", Action: ActionAdd, Type: TypeFile, ItemID: "note-1", UserID: "u1"}, 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	client := &stubClient{
		uploadFn: func(ctx context.Context, noteID string, blob []byte) ([]int64, error) {
			return nil, turtlerr.API(404, "note not found")
		},
	}
	worker := NewOutgoing(q, ig, client, files, "u1")
	if err := worker.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if _, ok, _ := q.Get(ctx, "file-1"); ok {
		t.Fatalf("expected file-1 dropped from queue after 404")
	}
}

func TestOutgoingEmitsFailureAndUploadEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := NewQueue(s)
	ig := NewIgnoreSet(s)
	dataDir := t.TempDir()
	files := NewFileStore(dataDir)
	if err := files.WriteStream("u1", "note-1", strings.NewReader("ciphertext")); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if err := q.Enqueue(ctx, &Record{ID: "bad-1", Action: ActionEdit, Type: TypeNote, UserID: "u1"}, 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, &Record{ID: "file-1", Action: ActionAdd, Type: TypeFile, ItemID: "note-1", UserID: "u1"}, 2); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	client := &stubClient{
		postSyncFn: func(ctx context.Context, records []*Record) (*PostSyncResponse, error) {
			var resp PostSyncResponse
			resp.Failures = append(resp.Failures, records...)
			return &resp, nil
		},
		uploadFn: func(ctx context.Context, noteID string, blob []byte) ([]int64, error) {
			return []int64{42}, nil
		},
	}

	sink := &fakeEventSink{}
	worker := NewOutgoing(q, ig, client, files, "u1")
	worker.Events = sink
	if err := worker.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	var sawFailure, sawUploaded bool
	for _, ev := range sink.events {
		switch ev.name {
		case "sync:outgoing:failure":
			sawFailure = true
			failures, ok := ev.payload.([]*Record)
			if !ok || len(failures) != 1 || failures[0].ID != "bad-1" {
				t.Fatalf("unexpected sync:outgoing:failure payload: %+v", ev.payload)
			}
		case "sync:file:uploaded":
			sawUploaded = true
			if ev.payload != "note-1" {
				t.Fatalf("unexpected sync:file:uploaded payload: %+v", ev.payload)
			}
		}
	}
	if !sawFailure {
		t.Fatalf("expected a sync:outgoing:failure event, got %+v", sink.events)
	}
	if !sawUploaded {
		t.Fatalf("expected a sync:file:uploaded event, got %+v", sink.events)
	}
}
