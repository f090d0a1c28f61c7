package core

import (
	"context"
	"encoding/json"

	"turtlcore/internal/model"
	"turtlcore/internal/profile"
	"turtlcore/internal/turtlerr"
)

// registerCommands binds every command spec.md §6's messaging channel
// lists to a HandlerFunc, against the app's own dispatcher. Called once
// from New; every handler closes over the *App receiver so it always
// sees the currently logged-in session's state.
func (a *App) registerCommands() {
	d := a.dispatch

	d.Register("user:login", a.cmdUserLogin)
	d.Register("user:join", a.cmdUserJoin)
	d.Register("user:logout", a.cmdUserLogout)
	d.Register("user:change-password", a.cmdChangePassword)
	d.Register("user:delete-account", a.cmdDeleteAccount)

	d.Register("profile:load", a.cmdProfileLoad)
	d.Register("profile:find-notes", a.cmdProfileFindNotes)
	d.Register("profile:sync:model", a.cmdProfileSyncModel)
	d.Register("profile:space:add", a.cmdProfileSpaceAdd)
	d.Register("profile:space:edit", a.cmdProfileSpaceEdit)
	d.Register("profile:space:delete", a.cmdProfileSpaceDelete)

	d.Register("sync:start", a.cmdSyncStart)
	d.Register("sync:shutdown", a.cmdSyncShutdown)

	d.Register("feedback:send", a.cmdFeedbackSend)
	d.Register("app:wipe-app-data", a.cmdWipeAppData)
	d.Register("app:shutdown", a.cmdAppShutdown)
}

// argString/argBytes decode one positional dispatch argument, returning a
// turtlerr.MissingField/BadValue error a handler can return directly.
func argString(args []json.RawMessage, i int) (string, error) {
	if i >= len(args) {
		return "", turtlerr.MissingField("arg")
	}
	var s string
	if err := json.Unmarshal(args[i], &s); err != nil {
		return "", turtlerr.BadValue("dispatch: arg %d: %v", i, err)
	}
	return s, nil
}

func (a *App) cmdUserLogin(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	username, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	password, err := argString(args, 1)
	if err != nil {
		return nil, err
	}
	return a.Login(ctx, username, password)
}

func (a *App) cmdUserJoin(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	username, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	password, err := argString(args, 1)
	if err != nil {
		return nil, err
	}
	return a.Join(ctx, username, password)
}

func (a *App) cmdUserLogout(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	return nil, a.Logout(ctx)
}

func (a *App) cmdChangePassword(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	currentPassword, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	newUsername, _ := argString(args, 1)
	newPassword, err := argString(args, 2)
	if err != nil {
		return nil, err
	}
	return nil, a.ChangePassword(ctx, currentPassword, newUsername, newPassword)
}

func (a *App) cmdDeleteAccount(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	return nil, a.DeleteAccount(ctx)
}

// profileLoadResult is `profile:load`'s response shape: every space, and
// every board grouped by the space it belongs to.
type profileLoadResult struct {
	User   *model.User              `json:"user"`
	Spaces []*model.Space           `json:"spaces"`
	Boards map[string][]*model.Board `json:"boards"`
}

func (a *App) cmdProfileLoad(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	spaces := a.profile.Spaces()
	boards := make(map[string][]*model.Board, len(spaces))
	for _, s := range spaces {
		boards[s.ID] = a.profile.Boards(s.ID)
	}
	result := &profileLoadResult{User: a.profile.User(), Spaces: spaces, Boards: boards}
	a.dispatch.Emit("profile:loaded", result)
	return result, nil
}

// findNotesArgs is `profile:find-notes`'s single JSON argument (a filter
// bag mirroring search.Query's builder one-to-one).
type findNotesArgs struct {
	Board       string   `json:"board,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ExcludeTags []string `json:"exclude_tags,omitempty"`
	Type        string   `json:"type,omitempty"`
	Color       string   `json:"color,omitempty"`
	HasFile     *bool    `json:"has_file,omitempty"`
	Text        string   `json:"text,omitempty"`
}

func (a *App) cmdProfileFindNotes(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		return nil, turtlerr.MissingField("filter")
	}
	var f findNotesArgs
	if err := json.Unmarshal(args[0], &f); err != nil {
		return nil, turtlerr.BadValue("dispatch: profile:find-notes filter: %v", err)
	}
	q := a.profile.Query()
	if f.Board != "" {
		q = q.Board(f.Board)
	}
	for _, t := range f.Tags {
		q = q.Tag(t)
	}
	if len(f.ExcludeTags) > 0 {
		q = q.ExcludeTags(f.ExcludeTags...)
	}
	if f.Type != "" {
		q = q.Type(f.Type)
	}
	if f.Color != "" {
		q = q.Color(f.Color)
	}
	if f.HasFile != nil {
		q = q.HasFile(*f.HasFile)
	}
	if f.Text != "" {
		q = q.Text(f.Text)
	}
	// spec.md §4.5's default result order: by mod descending, then id.
	q = q.SortBy(func(x, y string) bool {
		nx, okX := a.profile.Note(x)
		ny, okY := a.profile.Note(y)
		if !okX || !okY {
			return x < y
		}
		if nx.Mod != ny.Mod {
			return nx.Mod > ny.Mod
		}
		return nx.ID < ny.ID
	})
	return a.profile.NotesByIDs(q.Results()), nil
}

// syncModelArgs is `profile:sync:model`'s JSON argument: the action plus
// enough of the note to apply it (spec.md §6: "with action
// add/edit/delete/move-space").
type syncModelArgs struct {
	Action  string            `json:"action"`
	NoteID  string            `json:"note_id,omitempty"`
	SpaceID string            `json:"space_id,omitempty"`
	BoardID *string           `json:"board_id,omitempty"`
	Fields  profile.NoteFields `json:"fields,omitempty"`
}

func (a *App) cmdProfileSyncModel(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	if a.mutator == nil {
		return nil, turtlerr.PermissionDenied("profile:sync:model: not logged in")
	}
	if len(args) == 0 {
		return nil, turtlerr.MissingField("action")
	}
	var sm syncModelArgs
	if err := json.Unmarshal(args[0], &sm); err != nil {
		return nil, turtlerr.BadValue("dispatch: profile:sync:model: %v", err)
	}
	switch sm.Action {
	case "add":
		return a.mutator.CreateNote(ctx, sm.SpaceID, sm.BoardID, sm.Fields)
	case "edit":
		n, ok := a.profile.Note(sm.NoteID)
		if !ok {
			return nil, turtlerr.NotFound("profile:sync:model edit: note %s", sm.NoteID)
		}
		return nil, a.mutator.EditNote(ctx, n, sm.Fields)
	case "move-space":
		n, ok := a.profile.Note(sm.NoteID)
		if !ok {
			return nil, turtlerr.NotFound("profile:sync:model move-space: note %s", sm.NoteID)
		}
		return nil, a.mutator.MoveNote(ctx, n, sm.BoardID)
	case "delete":
		return nil, a.mutator.DeleteNote(ctx, sm.NoteID)
	default:
		return nil, turtlerr.BadValue("profile:sync:model: unknown action %q", sm.Action)
	}
}

type spaceAddArgs struct {
	Title string `json:"title"`
	Color string `json:"color,omitempty"`
}

func (a *App) cmdProfileSpaceAdd(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	if a.mutator == nil {
		return nil, turtlerr.PermissionDenied("profile:space:add: not logged in")
	}
	if len(args) == 0 {
		return nil, turtlerr.MissingField("space")
	}
	var sp spaceAddArgs
	if err := json.Unmarshal(args[0], &sp); err != nil {
		return nil, turtlerr.BadValue("dispatch: profile:space:add: %v", err)
	}
	return a.mutator.CreateSpace(ctx, sp.Title, sp.Color)
}

type spaceEditArgs struct {
	SpaceID string `json:"space_id"`
	Title   string `json:"title"`
	Color   string `json:"color,omitempty"`
}

func (a *App) cmdProfileSpaceEdit(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	if a.mutator == nil {
		return nil, turtlerr.PermissionDenied("profile:space:edit: not logged in")
	}
	if len(args) == 0 {
		return nil, turtlerr.MissingField("space")
	}
	var sp spaceEditArgs
	if err := json.Unmarshal(args[0], &sp); err != nil {
		return nil, turtlerr.BadValue("dispatch: profile:space:edit: %v", err)
	}
	s, ok := a.profile.Space(sp.SpaceID)
	if !ok {
		return nil, turtlerr.NotFound("profile:space:edit: space %s", sp.SpaceID)
	}
	return nil, a.mutator.EditSpace(ctx, s, sp.Title, sp.Color)
}

type spaceDeleteArgs struct {
	SpaceID string `json:"space_id"`
}

func (a *App) cmdProfileSpaceDelete(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	if a.mutator == nil {
		return nil, turtlerr.PermissionDenied("profile:space:delete: not logged in")
	}
	if len(args) == 0 {
		return nil, turtlerr.MissingField("space")
	}
	var sp spaceDeleteArgs
	if err := json.Unmarshal(args[0], &sp); err != nil {
		return nil, turtlerr.BadValue("dispatch: profile:space:delete: %v", err)
	}
	return nil, a.mutator.DeleteSpace(ctx, sp.SpaceID)
}

func (a *App) cmdSyncStart(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	a.mu.RLock()
	userID := a.userID
	a.mu.RUnlock()
	if userID == "" {
		return nil, turtlerr.PermissionDenied("sync:start: not logged in")
	}
	if a.syncCancel == nil {
		a.startSyncWorkers(userID)
	}
	a.dispatch.Emit("sync:connected", nil)
	return nil, nil
}

func (a *App) cmdSyncShutdown(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	a.stopSyncWorkers()
	return nil, nil
}

func (a *App) cmdFeedbackSend(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	body, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	return nil, a.api.SendFeedback(ctx, body)
}

// cmdWipeAppData deletes every locally persisted object and resets the
// in-memory profile, without touching the server account (spec.md §6's
// `app:wipe-app-data`, used by the file-transfer acceptance test to force
// a clean re-login).
func (a *App) cmdWipeAppData(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	a.stopSyncWorkers()
	for _, table := range []string{
		profile.TableUsers, profile.TableKeychain, profile.TableSpaces,
		profile.TableBoards, profile.TableNotes, profile.TableInvites,
	} {
		rows, err := a.store.All(ctx, table)
		if err != nil {
			return nil, turtlerr.Wrap(err, "app:wipe-app-data: listing "+table)
		}
		for _, raw := range rows {
			var obj struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(raw, &obj); err != nil {
				continue
			}
			if err := a.store.Delete(ctx, table, obj.ID); err != nil {
				return nil, turtlerr.Wrap(err, "app:wipe-app-data: deleting from "+table)
			}
		}
	}
	a.profile.SetUser(nil)
	a.mu.Lock()
	a.userID = ""
	a.username = ""
	a.mu.Unlock()
	return nil, nil
}

func (a *App) cmdAppShutdown(ctx context.Context, args []json.RawMessage) (interface{}, error) {
	return nil, a.Shutdown(ctx)
}
