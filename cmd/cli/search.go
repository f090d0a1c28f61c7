package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"turtlcore/internal/model"
)

// findNotesRequest mirrors core's findNotesArgs wire shape one field at a
// time, built from flags instead of a programmatic caller's JSON blob.
type findNotesRequest struct {
	Board       string   `json:"board,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ExcludeTags []string `json:"exclude_tags,omitempty"`
	Type        string   `json:"type,omitempty"`
	Color       string   `json:"color,omitempty"`
	Text        string   `json:"text,omitempty"`
}

var (
	searchBoard       string
	searchTags        []string
	searchExcludeTags []string
	searchType        string
	searchColor       string
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Find notes by board, tag, type, color, and/or full-text match",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		req := findNotesRequest{
			Board:       searchBoard,
			Tags:        searchTags,
			ExcludeTags: searchExcludeTags,
			Type:        searchType,
			Color:       searchColor,
		}
		if len(args) == 1 {
			req.Text = args[0]
		}
		argsJSON, err := json.Marshal(req)
		if err != nil {
			return err
		}
		notesAny, err := app.Dispatcher().CallAuto(cmd.Context(), "profile:find-notes", argsJSON)
		if err != nil {
			return err
		}
		notes, ok := notesAny.([]*model.Note)
		if !ok {
			return fmt.Errorf("cli: unexpected profile:find-notes result type %T", notesAny)
		}
		for _, n := range notes {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", n.ID, n.Title())
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchBoard, "board", "", "restrict to notes on this board id")
	searchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "restrict to notes carrying this tag (repeatable)")
	searchCmd.Flags().StringSliceVar(&searchExcludeTags, "exclude-tag", nil, "drop notes carrying this tag (repeatable)")
	searchCmd.Flags().StringVar(&searchType, "type", "", "restrict to notes of this type")
	searchCmd.Flags().StringVar(&searchColor, "color", "", "restrict to notes of this color")
}
