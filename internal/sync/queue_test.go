package sync

import (
	"context"
	"path/filepath"
	"testing"

	"turtlcore/internal/store"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "turtl.db"), store.Schema{Table: nil})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewQueue(s)
}

func TestEnqueueAndPendingSkipsFrozen(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	if err := q.Enqueue(ctx, &Record{ID: "s1", Action: ActionAdd, Type: TypeNote}, 1); err != nil {
		t.Fatalf("Enqueue s1: %v", err)
	}
	if err := q.Enqueue(ctx, &Record{ID: "s2", Action: ActionEdit, Type: TypeNote, Frozen: true}, 2); err != nil {
		t.Fatalf("Enqueue s2: %v", err)
	}
	if err := q.Enqueue(ctx, &Record{ID: "s3", Action: ActionAdd, Type: TypeBoard}, 3); err != nil {
		t.Fatalf("Enqueue s3: %v", err)
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "s1" || pending[1].ID != "s3" {
		t.Fatalf("Pending = %+v", pending)
	}

	frozen, err := q.Frozen(ctx)
	if err != nil || len(frozen) != 1 || frozen[0].ID != "s2" {
		t.Fatalf("Frozen = %+v, err=%v", frozen, err)
	}
}

func TestHandleFailureFreezesAfterThreshold(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)
	if err := q.Enqueue(ctx, &Record{ID: "s1", Action: ActionAdd, Type: TypeNote}, 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	for i := 0; i < MaxAllowedFailures; i++ {
		if err := q.HandleFailure(ctx, "s1"); err != nil {
			t.Fatalf("HandleFailure: %v", err)
		}
	}
	rec, ok, err := q.Get(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("Get: %v %v", ok, err)
	}
	if rec.Frozen {
		t.Fatalf("expected not yet frozen at errcount=%d", rec.Errcount)
	}

	if err := q.HandleFailure(ctx, "s1"); err != nil {
		t.Fatalf("HandleFailure: %v", err)
	}
	rec, _, _ = q.Get(ctx, "s1")
	if !rec.Frozen {
		t.Fatalf("expected frozen after exceeding MaxAllowedFailures, got errcount=%d", rec.Errcount)
	}
}

func TestUnfreezeClearsFlag(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)
	if err := q.Enqueue(ctx, &Record{ID: "s1", Frozen: true}, 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Unfreeze(ctx, "s1"); err != nil {
		t.Fatalf("Unfreeze: %v", err)
	}
	rec, _, _ := q.Get(ctx, "s1")
	if rec.Frozen {
		t.Fatalf("expected unfrozen")
	}
}

func TestIgnoreSetAddAndFilterOut(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "turtl.db"), store.Schema{})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	ig := NewIgnoreSet(s)
	if err := ig.Add(ctx, []int64{100, 101}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	records := []*Record{{ID: "100"}, {ID: "101"}, {ID: "102"}}
	filtered, err := ig.FilterOut(ctx, records)
	if err != nil {
		t.Fatalf("FilterOut: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "102" {
		t.Fatalf("FilterOut = %+v", filtered)
	}
}
