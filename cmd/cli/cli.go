// Package cli implements the command-line surface over internal/core's
// dispatch table, following the teacher's cmd/cli grouping convention
// (cmd/cli/peer_management.go: a package-level bound resource plus one
// *cobra.Command per subsystem, wired together in an init()).
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"turtlcore/internal/core"
)

// theApp is the bound application instance every command's RunE closes
// over, mirroring peer_management.go's package-level peerMgr — set once by
// Bind before Root's tree is executed.
var theApp *core.App

// Bind attaches the running application every command dispatches against.
// Must be called before Root().Execute().
func Bind(a *core.App) { theApp = a }

func requireApp() (*core.App, error) {
	if theApp == nil {
		return nil, fmt.Errorf("cli: no application bound (call cli.Bind first)")
	}
	return theApp, nil
}

// Root assembles the full command tree: one root command per subsystem,
// per SPEC_FULL.md's implementation-stack section ("login, join, sync,
// profile, search"), plus the remaining single-shot session commands.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "turtlcore",
		Short: "Turtl core: a client-side end-to-end encrypted note sync engine",
	}
	root.AddCommand(loginCmd, joinCmd, logoutCmd, passwdCmd, deleteAccountCmd)
	root.AddCommand(syncCmd)
	root.AddCommand(profileCmd)
	root.AddCommand(searchCmd)
	return root
}
