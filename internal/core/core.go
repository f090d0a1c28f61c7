// Package core wires every other package into the running client spec.md
// §2's data-flow summary describes: config drives the local store and API
// client, the profile/dispatch pair owns all decrypted state, and the
// outgoing/incoming sync workers move changes to and from the server
// through the Applier/Dispatcher boundary internal/profile implements.
// It is the one package allowed to construct every other package's types
// directly; everything above it (cmd/) only ever talks to an *App.
package core

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"turtlcore/internal/api"
	"turtlcore/internal/config"
	"turtlcore/internal/dispatch"
	"turtlcore/internal/metrics"
	"turtlcore/internal/model"
	"turtlcore/internal/profile"
	"turtlcore/internal/store"
	turtlsync "turtlcore/internal/sync"
	"turtlcore/internal/turtlerr"
)

var pkgLogger = log.New()

// SetLogger overrides the package-level logger.
func SetLogger(l *log.Logger) { pkgLogger = l }

// clientIDKey is the pre-login kv key a stable per-install identifier is
// stored under (SPEC_FULL.md's client_id: generated once, read on every
// subsequent start, independent of which user is logged in).
const clientIDKey = "app:client_id"

// App owns every long-lived component of one running client: the local
// store, the decrypted profile and its write path, the API client, the
// sync workers, and the command dispatcher. Exactly one App exists per
// process (spec.md §5: "a single data_folder, a single logged-in user").
type App struct {
	cfg *config.Config

	store         *store.Store
	api           *api.Client
	profile       *profile.Profile
	mutator       *profile.Mutator
	queue         *turtlsync.Queue
	filesQueue    *turtlsync.Queue
	ignore        *turtlsync.IgnoreSet
	files         *turtlsync.FileStore
	outgoing      *turtlsync.Outgoing
	incoming      *turtlsync.Incoming
	filesIncoming *turtlsync.FilesIncoming
	saver         *profile.MemorySaver
	disQueue      *profile.DispatchQueue
	dispatch      *dispatch.Dispatcher
	metrics       *metrics.SyncMetrics

	mu         sync.RWMutex
	clientID   string
	userID     string
	username   string
	authVer    uint16

	rootCtx    context.Context
	cancel     context.CancelFunc
	syncCancel context.CancelFunc
	wg         sync.WaitGroup
}

// syncContext derives a cancellable child of the app's root context for
// the per-session sync workers, so Logout can stop just those without
// touching the dispatcher (Start's own context).
func (a *App) syncContext() (context.Context, context.CancelFunc) {
	base := a.rootCtx
	if base == nil {
		base = context.Background()
	}
	return context.WithCancel(base)
}

// New opens the local store and builds every component that doesn't
// require a logged-in user yet. Login/Join populate the rest (the
// user-scoped sync workers, since they need the user id for file-layout
// scoping).
func New(cfg *config.Config) (*App, error) {
	schema := cfg.StoreSchema(profile.Schema())
	st, err := store.Open(cfg.DataFolder, schema)
	if err != nil {
		return nil, turtlerr.Wrap(err, "core.New: opening store")
	}

	apiClient, err := api.New(api.Config{Endpoint: cfg.API.Endpoint, Proxy: cfg.API.Proxy})
	if err != nil {
		st.Close()
		return nil, turtlerr.Wrap(err, "core.New: building API client")
	}

	a := &App{
		cfg:        cfg,
		store:      st,
		api:        apiClient,
		profile:    profile.New(st),
		queue:      turtlsync.NewQueue(st),
		filesQueue: turtlsync.NewFilesIncomingQueue(st),
		ignore:     turtlsync.NewIgnoreSet(st),
		files:      turtlsync.NewFileStore(cfg.DataFolder),
		metrics:    metrics.NewSyncMetrics(),
	}

	clientID, err := a.loadOrCreateClientID(context.Background())
	if err != nil {
		st.Close()
		return nil, err
	}
	a.clientID = clientID

	a.dispatch = dispatch.New(256, 256, 4)
	a.registerCommands()
	return a, nil
}

// ClientID returns the stable per-install identifier (SPEC_FULL.md's
// client_id), generated once on first run of this data folder.
func (a *App) ClientID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.clientID
}

// Dispatcher exposes the command/event channel for a UI-facing frontend
// to drive (cmd/'s messaging transport, or a direct in-process caller).
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatch }

// Profile exposes the read-only decrypted view for callers that need
// direct access beyond the dispatch command table (e.g. cmd/cli).
func (a *App) Profile() *profile.Profile { return a.profile }

// Metrics exposes the sync workers' Prometheus counters, so a host process
// (e.g. cmd/turtlcore) can mount Metrics().Handler() on its own diagnostics
// endpoint. Populated for the lifetime of the App regardless of login state;
// the counters simply stay at zero until sync workers start incrementing them.
func (a *App) Metrics() *metrics.SyncMetrics { return a.metrics }

func (a *App) loadOrCreateClientID(ctx context.Context) (string, error) {
	raw, ok, err := a.store.KVGet(ctx, clientIDKey)
	if err != nil {
		return "", turtlerr.Wrap(err, "core.App: loading client id")
	}
	if ok && len(raw) > 0 {
		return string(raw), nil
	}
	id := model.NewID()
	if err := a.store.KVSet(ctx, clientIDKey, []byte(id)); err != nil {
		return "", turtlerr.Wrap(err, "core.App: persisting client id")
	}
	return id, nil
}

// Start runs the dispatch worker pool and the in-memory dispatch queue,
// both bound to an internal context cancelled by Shutdown. It does not
// start the outgoing/incoming sync workers; user:login wires them in and
// starts them itself. Safe to call once, after New.
func (a *App) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.rootCtx = ctx
	a.cancel = cancel

	a.saver = profile.NewMemorySaver(a.profile, dispatchEventSink{a.dispatch})
	a.disQueue = profile.NewDispatchQueue(a.saver, 256)

	a.wg.Add(2)
	go func() { defer a.wg.Done(); a.dispatch.Run(ctx) }()
	go func() { defer a.wg.Done(); a.disQueue.Run(ctx) }()
}

// Shutdown cancels every running worker and waits for them to exit, then
// closes the local store. Matches spec.md §6's `app:shutdown` command.
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	return a.store.Close()
}

// dispatchEventSink adapts *dispatch.Dispatcher to profile.EventSink.
type dispatchEventSink struct{ d *dispatch.Dispatcher }

func (s dispatchEventSink) Emit(name string, payload interface{}) { s.d.Emit(name, payload) }
