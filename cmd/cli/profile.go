package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect and mutate the logged-in user's spaces, boards, and notes",
}

var profileLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Print every space and the boards under it",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		for _, s := range app.Profile().Spaces() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", s.ID, s.Title())
			for _, b := range app.Profile().Boards(s.ID) {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n", b.ID, b.Title())
			}
		}
		return nil
	},
}

// noteFields mirrors profile.NoteFields' exported field names (untagged,
// so its own JSON keys are its Go field names) for building a
// profile:sync:model argument from flags.
type noteFields struct {
	Type  string   `json:"Type,omitempty"`
	Title string   `json:"Title,omitempty"`
	Text  string   `json:"Text,omitempty"`
	Tags  []string `json:"Tags,omitempty"`
}

type syncModelRequest struct {
	Action  string     `json:"action"`
	SpaceID string     `json:"space_id,omitempty"`
	Fields  noteFields `json:"fields,omitempty"`
}

var (
	addNoteSpace string
	addNoteTitle string
	addNoteText  string
	addNoteTags  []string
)

var profileAddNoteCmd = &cobra.Command{
	Use:   "add-note",
	Short: "Create a note in a space",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		if addNoteSpace == "" {
			return fmt.Errorf("cli: --space is required")
		}
		req := syncModelRequest{
			Action:  "add",
			SpaceID: addNoteSpace,
			Fields:  noteFields{Title: addNoteTitle, Text: addNoteText, Tags: addNoteTags},
		}
		argsJSON, err := json.Marshal(req)
		if err != nil {
			return err
		}
		n, err := app.Dispatcher().CallAuto(cmd.Context(), "profile:sync:model", argsJSON)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created note: %+v\n", n)
		return nil
	},
}

type spaceAddRequest struct {
	Title string `json:"title"`
	Color string `json:"color,omitempty"`
}

var addSpaceColor string

var profileAddSpaceCmd = &cobra.Command{
	Use:   "add-space <title>",
	Short: "Create a new space",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		argsJSON, err := json.Marshal(spaceAddRequest{Title: args[0], Color: addSpaceColor})
		if err != nil {
			return err
		}
		s, err := app.Dispatcher().CallAuto(cmd.Context(), "profile:space:add", argsJSON)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created space: %+v\n", s)
		return nil
	},
}

func init() {
	profileAddNoteCmd.Flags().StringVar(&addNoteSpace, "space", "", "space id to add the note to")
	profileAddNoteCmd.Flags().StringVar(&addNoteTitle, "title", "", "note title")
	profileAddNoteCmd.Flags().StringVar(&addNoteText, "text", "", "note body text")
	profileAddNoteCmd.Flags().StringSliceVar(&addNoteTags, "tag", nil, "note tag (repeatable)")
	profileAddSpaceCmd.Flags().StringVar(&addSpaceColor, "color", "", "space color")
	profileCmd.AddCommand(profileLoadCmd, profileAddNoteCmd, profileAddSpaceCmd)
}
