package cli

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Control the outgoing/incoming sync workers",
}

var syncStartCmd = &cobra.Command{
	Use:   "start",
	Short: "(Re)start the sync workers for the logged-in session",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		_, err = app.Dispatcher().CallAuto(cmd.Context(), "sync:start")
		return err
	},
}

var syncShutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop the sync workers without logging out",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		_, err = app.Dispatcher().CallAuto(cmd.Context(), "sync:shutdown")
		return err
	},
}

func init() {
	syncCmd.AddCommand(syncStartCmd, syncShutdownCmd)
}
