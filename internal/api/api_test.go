package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"turtlcore/internal/crypto"
	turtlsync "turtlcore/internal/sync"
	"turtlcore/internal/turtlerr"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c, err := New(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestLoginRetriesDownToAcceptedVersion(t *testing.T) {
	const acceptedVersion = 3
	wantToken, err := crypto.DeriveAuthToken("bob", "hunter2", acceptedVersion, 8, 1024)
	if err != nil {
		t.Fatalf("DeriveAuthToken: %v", err)
	}

	r := mux.NewRouter()
	var attempts int32
	r.HandleFunc("/auth", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&attempts, 1)
		username, authToken, ok := req.BasicAuth()
		if !ok || username != "bob" {
			http.Error(w, "bad auth header", http.StatusBadRequest)
			return
		}
		if authToken != wantToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "user-1"})
	})

	c, srv := newTestClient(t, r)
	defer srv.Close()

	id, ver, err := c.Login(context.Background(), "bob", "hunter2", 8, 1024)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if id != "user-1" {
		t.Errorf("Login id = %q, want user-1", id)
	}
	if ver != acceptedVersion {
		t.Errorf("Login version = %d, want %d", ver, acceptedVersion)
	}
	// CurrentAuthVersion down to acceptedVersion inclusive, one probe each.
	wantAttempts := int32(CurrentAuthVersion - acceptedVersion + 1)
	if got := atomic.LoadInt32(&attempts); got != wantAttempts {
		t.Errorf("attempts = %d, want %d", got, wantAttempts)
	}
}

func TestLoginExhaustsAllVersionsOn401(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/auth", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
	c, srv := newTestClient(t, r)
	defer srv.Close()

	_, _, err := c.Login(context.Background(), "bob", "hunter2", 8, 1024)
	if err == nil {
		t.Fatal("Login: expected error, got nil")
	}
}

func TestPostSyncRoundTrip(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/sync", func(w http.ResponseWriter, req *http.Request) {
		var recs []*turtlsync.Record
		if err := json.NewDecoder(req.Body).Decode(&recs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(recs) != 1 {
			http.Error(w, "expected 1 record", http.StatusBadRequest)
			return
		}
		recs[0].SyncIDs = []int64{42}
		resp := turtlsync.PostSyncResponse{Success: recs}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}).Methods(http.MethodPost)

	c, srv := newTestClient(t, r)
	defer srv.Close()

	resp, err := c.PostSync(context.Background(), []*turtlsync.Record{{ID: "r1", Action: turtlsync.ActionAdd, Type: turtlsync.TypeNote, ItemID: "n1"}})
	if err != nil {
		t.Fatalf("PostSync: %v", err)
	}
	if len(resp.Success) != 1 || resp.Success[0].SyncIDs[0] != 42 {
		t.Errorf("PostSync response = %+v", resp)
	}
}

func TestGetSyncFull(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/sync/full", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(turtlsync.GetSyncResponse{
			Records: []*turtlsync.Record{{ID: "100", Type: turtlsync.TypeNote, Action: turtlsync.ActionAdd}},
			SyncID:  100,
		})
	})
	c, srv := newTestClient(t, r)
	defer srv.Close()

	resp, err := c.GetSyncFull(context.Background())
	if err != nil {
		t.Fatalf("GetSyncFull: %v", err)
	}
	if resp.SyncID != 100 || len(resp.Records) != 1 {
		t.Errorf("GetSyncFull response = %+v", resp)
	}
}

func TestGetSyncPassesCursorAndImmediate(t *testing.T) {
	r := mux.NewRouter()
	var gotQuery string
	r.HandleFunc("/sync", func(w http.ResponseWriter, req *http.Request) {
		gotQuery = req.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(turtlsync.GetSyncResponse{SyncID: 7})
	})
	c, srv := newTestClient(t, r)
	defer srv.Close()

	if _, err := c.GetSync(context.Background(), 6, true); err != nil {
		t.Fatalf("GetSync: %v", err)
	}
	if gotQuery != "sync_id=6&immediate=0" {
		t.Errorf("query = %q, want sync_id=6&immediate=0", gotQuery)
	}
}

func TestGetSyncTimeoutSurfacesAsTryAgain(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/sync", func(w http.ResponseWriter, req *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(turtlsync.GetSyncResponse{})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.httpClient.Timeout = 5 * time.Millisecond

	_, err = c.GetSync(context.Background(), 0, true)
	if err == nil {
		t.Fatal("GetSync: expected timeout error, got nil")
	}
	if turtlerr.KindOf(err) != turtlerr.KindTryAgain {
		t.Errorf("GetSync error kind = %v, want KindTryAgain", turtlerr.KindOf(err))
	}
}

func TestUploadAttachment404DropsAsNotFound(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/notes/{id}/attachment", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "note deleted", http.StatusNotFound)
	}).Methods(http.MethodPut)
	c, srv := newTestClient(t, r)
	defer srv.Close()

	_, err := c.UploadAttachment(context.Background(), "note-1", []byte("ciphertext"))
	if err == nil {
		t.Fatal("UploadAttachment: expected error, got nil")
	}
	apiErr, ok := err.(*turtlerr.Error)
	if !ok || apiErr.Kind != turtlerr.KindAPI || apiErr.Status != http.StatusNotFound {
		t.Errorf("UploadAttachment err = %#v, want *turtlerr.Error{Kind: KindAPI, Status: 404}", err)
	}
}

func TestUploadAttachmentSuccess(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/notes/{id}/attachment", func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		if vars["id"] != "note-1" {
			http.Error(w, "wrong id", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][]int64{"sync_ids": {9, 10}})
	}).Methods(http.MethodPut)
	c, srv := newTestClient(t, r)
	defer srv.Close()

	ids, err := c.UploadAttachment(context.Background(), "note-1", []byte("ciphertext"))
	if err != nil {
		t.Fatalf("UploadAttachment: %v", err)
	}
	if len(ids) != 2 || ids[0] != 9 || ids[1] != 10 {
		t.Errorf("UploadAttachment ids = %v", ids)
	}
}

func TestJoinAndDeleteAccount(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/users", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JoinResponse{ID: "u1", StorageMB: 100})
	}).Methods(http.MethodPost)
	var deletedID string
	r.HandleFunc("/users/{id}", func(w http.ResponseWriter, req *http.Request) {
		deletedID = mux.Vars(req)["id"]
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodDelete)

	c, srv := newTestClient(t, r)
	defer srv.Close()

	resp, err := c.Join(context.Background(), json.RawMessage(`{"body":"ct"}`), json.RawMessage(`{"hash":"ct"}`))
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if resp.ID != "u1" || resp.StorageMB != 100 {
		t.Errorf("Join response = %+v", resp)
	}

	if err := c.DeleteAccount(context.Background(), "u1"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if deletedID != "u1" {
		t.Errorf("deletedID = %q, want u1", deletedID)
	}
}

func TestInviteLifecycle(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/spaces/{id}/invites", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(InviteResponse{SyncIDs: []int64{1}})
	}).Methods(http.MethodPost)
	r.HandleFunc("/spaces/{id}/invites/accepted/{invite_id}", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(InviteResponse{SyncIDs: []int64{2}})
	}).Methods(http.MethodPost)
	r.HandleFunc("/spaces/{id}/members/{user_id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodDelete)

	c, srv := newTestClient(t, r)
	defer srv.Close()

	resp, err := c.SendInvite(context.Background(), "space-1", json.RawMessage(`{"to_email":"x@y.com"}`))
	if err != nil {
		t.Fatalf("SendInvite: %v", err)
	}
	if len(resp.SyncIDs) != 1 || resp.SyncIDs[0] != 1 {
		t.Errorf("SendInvite response = %+v", resp)
	}

	resp, err = c.AcceptInvite(context.Background(), "space-1", "invite-1")
	if err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	if len(resp.SyncIDs) != 1 || resp.SyncIDs[0] != 2 {
		t.Errorf("AcceptInvite response = %+v", resp)
	}

	if err := c.RemoveMember(context.Background(), "space-1", "user-1"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/users/email/{email}", func(w http.ResponseWriter, req *http.Request) {
		if mux.Vars(req)["email"] != "a@b.com" {
			http.Error(w, "wrong email", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(UserByEmail{ID: "u2", Pubkey: "abc123"})
	})
	c, srv := newTestClient(t, r)
	defer srv.Close()

	resp, err := c.GetUserByEmail(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if resp.ID != "u2" || resp.Pubkey != "abc123" {
		t.Errorf("GetUserByEmail response = %+v", resp)
	}
}

func TestDoRetriesOn5xxThenSucceeds(t *testing.T) {
	r := mux.NewRouter()
	var calls int32
	r.HandleFunc("/feedback", func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "server hiccup", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(true)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, MaxRetries: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.SendFeedback(context.Background(), "it crashed"); err != nil {
		t.Fatalf("SendFeedback: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestDoDoesNotRetry4xx(t *testing.T) {
	r := mux.NewRouter()
	var calls int32
	r.HandleFunc("/feedback", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad body", http.StatusBadRequest)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, MaxRetries: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = c.SendFeedback(context.Background(), "it crashed")
	if err == nil {
		t.Fatal("SendFeedback: expected error, got nil")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not retry)", got)
	}
	apiErr, ok := err.(*turtlerr.Error)
	if !ok || apiErr.Status != http.StatusBadRequest {
		t.Errorf("err = %#v, want *turtlerr.Error{Status: 400}", err)
	}
}
