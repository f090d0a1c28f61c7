package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"turtlcore/internal/config"
)

// newTestApp builds an App against an in-memory store and a test server,
// with every sync worker disabled by default so tests can drive Login/Join
// deterministically without a background goroutine racing the assertions.
func newTestApp(t *testing.T, handler http.Handler) (*App, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	cfg := config.Default()
	cfg.API.Endpoint = srv.URL
	cfg.Sync.EnableOutgoing = false
	cfg.Sync.EnableIncoming = false
	cfg.Sync.EnableFilesIncoming = false

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.Start(context.Background())
	t.Cleanup(func() {
		a.Shutdown(context.Background())
		srv.Close()
	})
	return a, srv
}

func TestNewAssignsStableClientID(t *testing.T) {
	a, _ := newTestApp(t, mux.NewRouter())
	id1 := a.ClientID()
	if id1 == "" {
		t.Fatal("ClientID: expected non-empty id")
	}
	// re-reading from the same (in-memory, so really just the same) store
	// must return the identical id rather than minting a new one.
	id2, err := a.loadOrCreateClientID(context.Background())
	if err != nil {
		t.Fatalf("loadOrCreateClientID: %v", err)
	}
	if id2 != id1 {
		t.Fatalf("client id changed across reload: %q vs %q", id1, id2)
	}
}

func TestShutdownStopsDispatcher(t *testing.T) {
	a, _ := newTestApp(t, mux.NewRouter())
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	// a second Shutdown is redundant (cmdAppShutdown could be dispatched
	// more than once by a retrying client) but must not panic or hang.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
