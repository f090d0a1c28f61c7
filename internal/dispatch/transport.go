package dispatch

import (
	"context"
	"encoding/json"
)

// Transport is the process-host boundary the messaging channel binds to in
// a full client — named in spec.md §6 but explicitly out of scope as a
// concrete ABI. Defining it here (mirroring the original's messaging.rs
// bind/dispatch loop) lets a real transport be wired in later without
// touching any routing/handler logic in Dispatcher.
type Transport interface {
	// ReadCommand blocks for the next incoming `[mid, command, ...args]`
	// frame.
	ReadCommand(ctx context.Context) (mid, name string, args []json.RawMessage, err error)
	// WriteResponse sends the `{e: 0|1, d: payload}` reply for mid. errMsg
	// is empty on success.
	WriteResponse(mid string, ok bool, data interface{}, errMsg string) error
	// WriteEvent sends an unsolicited `{e: name, d: payload}` frame.
	WriteEvent(name string, data interface{}) error
}

// RunTransport pumps t's incoming command frames into the dispatcher and
// its responses/events back out, until ctx is cancelled or t.ReadCommand
// returns an error. Each command runs in its own goroutine so a slow
// handler never blocks the read loop from picking up the next frame.
func (d *Dispatcher) RunTransport(ctx context.Context, t Transport) error {
	go d.pumpEvents(ctx, t)

	for {
		mid, name, args, err := t.ReadCommand(ctx)
		if err != nil {
			return err
		}
		go func(mid, name string, args []json.RawMessage) {
			data, err := d.Call(ctx, mid, name, args...)
			if err != nil {
				_ = t.WriteResponse(mid, false, nil, err.Error())
				return
			}
			_ = t.WriteResponse(mid, true, data, "")
		}(mid, name, args)
	}
}

func (d *Dispatcher) pumpEvents(ctx context.Context, t Transport) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.events:
			if err := t.WriteEvent(ev.Name, ev.Data); err != nil {
				pkgLogger.WithError(err).WithField("event", ev.Name).Warn("dispatch: writing event to transport failed")
			}
		}
	}
}
