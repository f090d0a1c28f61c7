package core

import (
	"context"
	"encoding/json"
	"sort"

	"turtlcore/internal/api"
	"turtlcore/internal/crypto"
	"turtlcore/internal/keychain"
	"turtlcore/internal/model"
	"turtlcore/internal/profile"
	turtlsync "turtlcore/internal/sync"
	"turtlcore/internal/turtlerr"
)

// defaultSpaces is the starter profile spec.md's acceptance test expects
// freshly joined accounts to have: three top-level spaces, with three
// boards seeded under the first.
var defaultSpaces = []string{"Personal", "Work", "Home"}
var defaultBoards = []string{"Bookmarks", "Photos", "Passwords"}

func userIDKeyGen(userID string) func() (string, error) {
	return func() (string, error) { return userID, nil }
}

// installRootKey registers the user's own derived root key as the
// keychain entry keyed by the user's own id — the special case
// model.Deserialize's kc.Find(base.ID) lookup relies on, since a User's
// key is never discovered via key-search (model.User.KeyRefs is always
// empty).
func (a *App) installRootKey(userID string, rootKey crypto.Key) {
	kc := a.profile.Keychain()
	// the entry's own id need not be stable across sessions; reuse the
	// user id itself so re-login is idempotent.
	_ = kc.UpsertKey(userID, rootKey, keychain.TypeUser, userID, userIDKeyGen(userID))
}

// Login authenticates against the server, derives the local root key,
// loads whatever profile state is already persisted locally, starts the
// sync workers, and (on an empty local store) lets the incoming worker's
// first pass bootstrap the full profile via GET /sync/full (spec.md
// §4.8 step 4).
func (a *App) Login(ctx context.Context, username, password string) (*model.User, error) {
	cpu, mem := crypto.KeygenOpsDefault, crypto.KeygenMemDefault
	userID, ver, err := a.api.Login(ctx, username, password, uint32(cpu), uint32(mem))
	if err != nil {
		return nil, err
	}

	rootKey, err := crypto.DeriveRootKey(username, password, ver, uint32(cpu), uint32(mem))
	if err != nil {
		return nil, turtlerr.Wrap(err, "core.App.Login: deriving root key")
	}
	a.installRootKey(userID, rootKey)

	a.mu.Lock()
	a.userID = userID
	a.username = username
	a.authVer = ver
	a.mu.Unlock()

	if err := a.profile.Load(ctx); err != nil {
		return nil, turtlerr.Wrap(err, "core.App.Login: loading local profile")
	}

	a.mutator = profile.NewMutator(a.profile, a.queue, a.files, userID)
	a.startSyncWorkers(userID)

	u := a.profile.User()
	if u == nil {
		// local store had no User row yet (first login on this device,
		// or after app:wipe-app-data): synthesize a minimal in-memory
		// placeholder until the first incoming sync pass supplies it.
		u = model.NewUser()
		u.ID = userID
		u.Username = username
		u.SetKey(rootKey)
		a.profile.SetUser(u)
	}

	if a.dispatch != nil {
		a.dispatch.Emit("user:login", map[string]string{"id": userID})
	}
	return u, nil
}

// Join creates a new account, derives its root key locally, installs it,
// and seeds the default starter profile (three spaces, three boards under
// the first) spec.md's acceptance test names.
func (a *App) Join(ctx context.Context, username, password string) (*model.User, error) {
	cpu, mem := crypto.KeygenOpsDefault, crypto.KeygenMemDefault
	const ver = uint16(api.CurrentAuthVersion) // a freshly joined account always starts at the newest version.

	authToken, err := crypto.DeriveAuthToken(username, password, ver, uint32(cpu), uint32(mem))
	if err != nil {
		return nil, turtlerr.Wrap(err, "core.App.Join: deriving auth token")
	}
	rootKey, err := crypto.DeriveRootKey(username, password, ver, uint32(cpu), uint32(mem))
	if err != nil {
		return nil, turtlerr.Wrap(err, "core.App.Join: deriving root key")
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, turtlerr.Wrap(err, "core.App.Join: generating keypair")
	}

	u := model.NewUser()
	u.ID = model.NewID()
	u.Username = username
	u.Pubkey = kp.Public[:]
	u.SetKey(rootKey)
	priv := kp.PrivateBytes()
	u.SetPrivkey(priv[:])
	if err := model.Serialize(u, a.profile); err != nil {
		return nil, turtlerr.Wrap(err, "core.App.Join: serializing user")
	}

	userData, err := json.Marshal(u)
	if err != nil {
		return nil, turtlerr.Wrap(err, "core.App.Join: encoding user")
	}
	authData, err := json.Marshal(authToken)
	if err != nil {
		return nil, turtlerr.Wrap(err, "core.App.Join: encoding auth")
	}

	a.api.SetAuth(username, authToken)
	resp, err := a.api.Join(ctx, userData, authData)
	if err != nil {
		return nil, err
	}
	u.ID = resp.ID
	u.StorageMB = resp.StorageMB

	a.installRootKey(u.ID, rootKey)
	a.mu.Lock()
	a.userID = u.ID
	a.username = username
	a.authVer = ver
	a.mu.Unlock()

	a.profile.SetUser(u)
	a.mutator = profile.NewMutator(a.profile, a.queue, a.files, u.ID)
	a.startSyncWorkers(u.ID)

	if err := a.seedDefaultProfile(ctx); err != nil {
		return nil, err
	}

	if a.dispatch != nil {
		a.dispatch.Emit("user:login", map[string]string{"id": u.ID})
	}
	return u, nil
}

// seedDefaultProfile creates the starter spaces/boards a fresh account
// gets, matching the original client's own onboarding defaults.
func (a *App) seedDefaultProfile(ctx context.Context) error {
	spacesByTitle := make(map[string]*model.Space, len(defaultSpaces))
	for _, title := range defaultSpaces {
		s, err := a.mutator.CreateSpace(ctx, title, "")
		if err != nil {
			return turtlerr.Wrap(err, "core.App.seedDefaultProfile: creating space "+title)
		}
		spacesByTitle[title] = s
	}
	personal := spacesByTitle[defaultSpaces[0]]
	for _, title := range defaultBoards {
		if _, err := a.mutator.CreateBoard(ctx, personal.ID, title); err != nil {
			return turtlerr.Wrap(err, "core.App.seedDefaultProfile: creating board "+title)
		}
	}
	return nil
}

// startSyncWorkers wires and starts the outgoing/incoming workers for the
// now-known logged-in user. Called once per session, from Login/Join.
func (a *App) startSyncWorkers(userID string) {
	applier := profile.NewStoreApplier(a.profile)
	a.outgoing = turtlsync.NewOutgoing(a.queue, a.ignore, a.api, a.files, userID)
	a.outgoing.EnableFiles = a.cfg.Sync.EnableFilesOutgoing
	a.outgoing.Metrics = a.metrics
	a.outgoing.Events = dispatchEventSink{a.dispatch}
	a.incoming = turtlsync.NewIncoming(a.store, a.api, a.ignore, applier, a.disQueue, a.filesQueue)
	a.incoming.Metrics = a.metrics
	a.filesIncoming = turtlsync.NewFilesIncoming(a.filesQueue, a.api, a.files, userID)
	a.filesIncoming.Metrics = a.metrics
	a.filesIncoming.Events = dispatchEventSink{a.dispatch}

	if !a.cfg.Sync.EnableOutgoing {
		a.outgoing = nil
	}
	if !a.cfg.Sync.EnableIncoming {
		a.incoming = nil
	}
	if !a.cfg.Sync.EnableFilesIncoming {
		a.filesIncoming = nil
	}

	ctx, cancel := a.syncContext()
	a.syncCancel = cancel
	if a.outgoing != nil {
		a.wg.Add(1)
		go func() { defer a.wg.Done(); a.outgoing.Run(ctx) }()
	}
	if a.incoming != nil {
		a.wg.Add(1)
		go func() { defer a.wg.Done(); a.incoming.Run(ctx) }()
	}
	if a.filesIncoming != nil {
		a.wg.Add(1)
		go func() { defer a.wg.Done(); a.filesIncoming.Run(ctx) }()
	}
}

// stopSyncWorkers cancels the per-session sync workers (user:logout,
// sync:shutdown) without tearing down the dispatcher or profile.
func (a *App) stopSyncWorkers() {
	if a.syncCancel != nil {
		a.syncCancel()
		a.syncCancel = nil
	}
}

// Logout stops the sync workers and clears the decrypted in-memory
// profile, without touching anything persisted locally (spec.md §6's
// `user:logout`).
func (a *App) Logout(ctx context.Context) error {
	a.stopSyncWorkers()
	a.profile.SetUser(nil)
	a.mu.Lock()
	a.userID = ""
	a.username = ""
	a.mu.Unlock()
	if a.dispatch != nil {
		a.dispatch.Emit("user:logout", nil)
	}
	return nil
}

// ChangePassword re-keys the account: a fresh root key is derived from
// the new password, the User record and every keychain entry are
// re-serialized under it, and the bundle is sent to the server in one
// request so the change is all-or-nothing (spec.md §4.1/§6).
func (a *App) ChangePassword(ctx context.Context, currentPassword, newUsername, newPassword string) error {
	a.mu.RLock()
	userID, username, ver := a.userID, a.username, a.authVer
	a.mu.RUnlock()
	if userID == "" {
		return turtlerr.PermissionDenied("core.App.ChangePassword: not logged in")
	}

	cpu, mem := uint32(crypto.KeygenOpsDefault), uint32(crypto.KeygenMemDefault)
	currentAuth, err := crypto.DeriveAuthToken(username, currentPassword, ver, cpu, mem)
	if err != nil {
		return turtlerr.Wrap(err, "core.App.ChangePassword: deriving current auth")
	}

	if newUsername == "" {
		newUsername = username
	}
	const newVer = uint16(api.CurrentAuthVersion) // re-keying always re-bases to the newest generation.
	newAuth, err := crypto.DeriveAuthToken(newUsername, newPassword, newVer, cpu, mem)
	if err != nil {
		return turtlerr.Wrap(err, "core.App.ChangePassword: deriving new auth")
	}
	newKey, err := crypto.DeriveRootKey(newUsername, newPassword, newVer, cpu, mem)
	if err != nil {
		return turtlerr.Wrap(err, "core.App.ChangePassword: deriving new root key")
	}

	u := a.profile.User()
	if u == nil {
		return turtlerr.NotFound("core.App.ChangePassword: no logged-in user")
	}
	u.Username = newUsername
	u.SetKey(newKey)
	if err := model.Serialize(u, a.profile); err != nil {
		return turtlerr.Wrap(err, "core.App.ChangePassword: re-serializing user")
	}

	entries := a.profile.Keychain().All()
	sort.Slice(entries, func(i, j int) bool { return entries[i].ItemID < entries[j].ItemID })
	rewrapped := make([]*model.KeychainEntry, 0, len(entries))
	for _, e := range entries {
		ke := model.FromRuntimeEntry(e, newKey)
		if err := model.Serialize(ke, a.profile); err != nil {
			return turtlerr.Wrap(err, "core.App.ChangePassword: re-wrapping keychain entry "+e.ItemID)
		}
		rewrapped = append(rewrapped, ke)
	}

	userData, err := json.Marshal(u)
	if err != nil {
		return turtlerr.Wrap(err, "core.App.ChangePassword: encoding user")
	}
	authData, err := json.Marshal(newAuth)
	if err != nil {
		return turtlerr.Wrap(err, "core.App.ChangePassword: encoding auth")
	}
	keychainData, err := json.Marshal(rewrapped)
	if err != nil {
		return turtlerr.Wrap(err, "core.App.ChangePassword: encoding keychain")
	}

	a.api.SetAuth(username, currentAuth)
	if _, err := a.api.ChangePassword(ctx, userID, userData, authData, keychainData); err != nil {
		return err
	}

	a.api.SetAuth(newUsername, newAuth)
	// entries themselves (each item's own key, in kc.entries[itemID].K)
	// are untouched — only the wire wrapping around each entry changes,
	// which installRootKey's keychain-entry lookup doesn't depend on.
	a.installRootKey(userID, newKey)
	a.mu.Lock()
	a.username = newUsername
	a.authVer = newVer
	a.mu.Unlock()
	return nil
}

// DeleteAccount destroys the account server-side and logs out locally
// (spec.md §6's `user:delete-account`). Locally persisted data is left
// on disk — `app:wipe-app-data` is the separate command for that.
func (a *App) DeleteAccount(ctx context.Context) error {
	a.mu.RLock()
	userID := a.userID
	a.mu.RUnlock()
	if userID == "" {
		return turtlerr.PermissionDenied("core.App.DeleteAccount: not logged in")
	}
	if err := a.api.DeleteAccount(ctx, userID); err != nil {
		return err
	}
	return a.Logout(ctx)
}
