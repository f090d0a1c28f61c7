package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"turtlcore/internal/turtlerr"
)

func TestCallRoutesToHandler(t *testing.T) {
	d := New(4, 4, 2)
	d.Register("echo", func(ctx context.Context, args []json.RawMessage) (interface{}, error) {
		var s string
		if len(args) > 0 {
			_ = json.Unmarshal(args[0], &s)
		}
		return s, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	arg, _ := json.Marshal("hello")
	got, err := d.CallAuto(ctx, "echo", arg)
	if err != nil {
		t.Fatalf("CallAuto: %v", err)
	}
	if got != "hello" {
		t.Fatalf("CallAuto result = %v", got)
	}
}

func TestCallUnknownCommandReturnsNotFound(t *testing.T) {
	d := New(4, 4, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	_, err := d.CallAuto(ctx, "nonexistent")
	if err == nil || !turtlerr.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCallPropagatesHandlerError(t *testing.T) {
	d := New(4, 4, 1)
	wantErr := turtlerr.PermissionDenied("nope")
	d.Register("fail", func(ctx context.Context, args []json.RawMessage) (interface{}, error) {
		return nil, wantErr
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	_, err := d.CallAuto(ctx, "fail")
	if err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	d := New(4, 4, 1)
	d.Register("dup", func(ctx context.Context, args []json.RawMessage) (interface{}, error) { return nil, nil })

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic on duplicate Register")
		}
	}()
	d.Register("dup", func(ctx context.Context, args []json.RawMessage) (interface{}, error) { return nil, nil })
}

func TestEmitDeliversToEventsChannel(t *testing.T) {
	d := New(4, 4, 1)
	d.Emit("profile:loaded", map[string]int{"spaces": 3})

	select {
	case ev := <-d.Events():
		if ev.Name != "profile:loaded" {
			t.Fatalf("event name = %q", ev.Name)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
}

func TestEmitDropsWhenChannelFull(t *testing.T) {
	d := New(1, 1, 1)
	d.Emit("a", nil)
	d.Emit("b", nil) // channel capacity 1, already full; must not block

	ev := <-d.Events()
	if ev.Name != "a" {
		t.Fatalf("expected first event to survive, got %q", ev.Name)
	}
	select {
	case ev := <-d.Events():
		t.Fatalf("expected no second event, got %+v", ev)
	default:
	}
}

func TestCallContextCancelledBeforeResponse(t *testing.T) {
	d := New(1, 1, 1) // Run is never started, so nothing drains the queue
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.CallAuto(ctx, "whatever")
	if err != context.DeadlineExceeded {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}
