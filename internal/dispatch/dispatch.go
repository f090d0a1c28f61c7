// Package dispatch implements the messaging channel's request/response
// framing, command routing, and event emission (spec.md §6's "Messaging
// channel" / component #11), realized as an in-process construct over
// buffered Go channels rather than the process-host C ABI the original
// binds it to (that transport is explicitly out of scope). A Command is a
// `[mid, command, ...args]` frame; a Response is the `{e: 0|1, d: payload}`
// reply posted back on that mid; an Event is an unsolicited `{e: name, d:
// payload}` frame, matching spec.md §6 exactly.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"turtlcore/internal/model"
	"turtlcore/internal/turtlerr"
)

var pkgLogger = log.New()

// SetLogger overrides the package-level logger.
func SetLogger(l *log.Logger) { pkgLogger = l }

// HandlerFunc implements one command. args are the frame's positional
// arguments, still JSON-encoded (a handler decodes only what it needs).
type HandlerFunc func(ctx context.Context, args []json.RawMessage) (interface{}, error)

// Event is an unsolicited `{e: name, d: payload}` frame (spec.md §6's event
// list: user:login, profile:loaded, sync:incoming, etc.).
type Event struct {
	Name string
	Data interface{}
}

// Response is the `{e: 0|1, d: payload}` reply for one Command's mid.
type Response struct {
	Mid  string
	Ok   bool
	Data interface{}
	Err  error
}

type request struct {
	ctx  context.Context
	mid  string
	name string
	args []json.RawMessage
}

// Dispatcher is the command router: a name -> HandlerFunc table (populated
// once at startup, like the teacher's opcode table), a bounded request
// queue drained by a worker pool, and a bounded event channel UI-facing
// code drains independently.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	queue    chan *request
	events   chan Event
	inflight sync.Map // mid -> chan Response

	workers int
}

// New builds a Dispatcher with the given request-queue capacity, event
// capacity, and worker-pool size (spec.md §5's concurrency model: a fixed
// pool draining a bounded channel, not one goroutine per request).
func New(queueCapacity, eventCapacity, workers int) *Dispatcher {
	if queueCapacity <= 0 {
		queueCapacity = 64
	}
	if eventCapacity <= 0 {
		eventCapacity = 64
	}
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		queue:    make(chan *request, queueCapacity),
		events:   make(chan Event, eventCapacity),
		workers:  workers,
	}
}

// Register binds name to fn. Registration happens once at startup (see
// internal/core's registerCommands); a duplicate name is a programming error, not a
// recoverable runtime condition, so it panics immediately rather than
// silently overwriting a handler.
func (d *Dispatcher) Register(name string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[name]; exists {
		panic(fmt.Sprintf("dispatch: command %q already registered", name))
	}
	d.handlers[name] = fn
}

// Call submits a command under mid and blocks for its response. mid is
// caller-supplied so a real transport's frame id survives the round trip
// (see RunTransport); CallAuto generates one for in-process callers that
// don't otherwise have one.
func (d *Dispatcher) Call(ctx context.Context, mid, name string, args ...json.RawMessage) (interface{}, error) {
	reply := make(chan Response, 1)
	d.inflight.Store(mid, reply)
	defer d.inflight.Delete(mid)

	req := &request{ctx: ctx, mid: mid, name: name, args: args}
	select {
	case d.queue <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-reply:
		if !resp.Ok {
			return nil, resp.Err
		}
		return resp.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CallAuto is Call with a freshly generated mid, for callers inside the
// process that have no externally-meaningful frame id to preserve.
func (d *Dispatcher) CallAuto(ctx context.Context, name string, args ...json.RawMessage) (interface{}, error) {
	return d.Call(ctx, model.NewID(), name, args...)
}

// Emit posts an unsolicited event. It never blocks: a full event channel
// means nothing is draining Events(), which is itself a bug worth logging
// rather than stalling whatever command triggered the emission.
func (d *Dispatcher) Emit(name string, data interface{}) {
	select {
	case d.events <- Event{Name: name, Data: data}:
	default:
		pkgLogger.WithField("event", name).Warn("dispatch: event channel full, dropping event")
	}
}

// Events returns the channel UI-facing code drains for unsolicited events.
func (d *Dispatcher) Events() <-chan Event { return d.events }

// Run starts the worker pool draining the request queue, blocking until ctx
// is cancelled and every in-flight handler has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			d.handle(req)
		}
	}
}

func (d *Dispatcher) handle(req *request) {
	d.mu.RLock()
	fn, ok := d.handlers[req.name]
	d.mu.RUnlock()

	var resp Response
	resp.Mid = req.mid
	if !ok {
		resp.Err = turtlerr.NotFound("dispatch: unknown command %q", req.name)
	} else {
		data, err := fn(req.ctx, req.args)
		if err != nil {
			resp.Err = err
		} else {
			resp.Ok = true
			resp.Data = data
		}
	}

	if v, ok := d.inflight.Load(req.mid); ok {
		v.(chan Response) <- resp
	}
}
