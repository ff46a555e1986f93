package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jw6ventures/openday/internal/availability"
	"github.com/jw6ventures/openday/internal/client"
)

func newParticipantsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "participants",
		Short: "List everyone registered",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.authedClient()
			if err != nil {
				return writeErr(cmd, err)
			}

			list, err := c.Participants(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}

			return emit(cmd, app, list, func(w io.Writer) {
				if len(list) == 0 {
					fmt.Fprintln(w, "no participants yet")
					return
				}
				for _, p := range list {
					fmt.Fprintf(w, "%s  %s  %s\n", p.ID, p.Label, p.Color)
				}
			})
		},
	}
}

func newOverviewCmd(app *App) *cobra.Command {
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Show everyone's marks and the open days (viewer only)",
		Long: "Fetch every participant's unavailable days, flag dates under the\n" +
			"chosen classification mode, and list the window days left open.\n" +
			"Without --mode the server's configured mode applies.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.authedClient()
			if err != nil {
				return writeErr(cmd, err)
			}

			ov := client.NewOverview(c)
			if err := ov.Refresh(cmd.Context()); err != nil {
				return writeErr(cmd, err)
			}

			mode := ov.DefaultMode()
			if modeFlag != "" {
				mode, err = availability.ParseMode(modeFlag)
				if err != nil {
					return writeErr(cmd, err)
				}
			}

			apiWindow, err := c.Window(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			window := windowOf(apiWindow)

			participants := ov.Participants()
			flagged := ov.Flagged(mode)
			open := ov.Open(window, mode)

			marks := make(map[string][]string, len(participants))
			for _, p := range participants {
				marks[p.ID] = dayList(ov.Marks(p.ID))
			}

			return emit(cmd, app, map[string]any{
				"mode":         mode,
				"participants": participants,
				"marks":        marks,
				"flagged":      dayList(flagged),
				"open":         dayList(open),
			}, func(w io.Writer) {
				fmt.Fprintf(w, "window %s to %s, mode %s\n\n", apiWindow.Start, apiWindow.End, mode)

				for _, p := range participants {
					days := ov.Marks(p.ID)
					fmt.Fprintf(w, "%s (%s): %d unavailable\n", p.Label, p.ID, len(days))
					for _, d := range days {
						fmt.Fprintf(w, "  %s\n", d)
					}
				}

				fmt.Fprintf(w, "\nflagged (%d):\n", len(flagged))
				for _, d := range flagged {
					fmt.Fprintf(w, "  %s\n", d)
				}

				fmt.Fprintf(w, "\nopen (%d):\n", len(open))
				for _, d := range open {
					fmt.Fprintf(w, "  %s\n", d)
				}
			})
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", "", "Classification mode: none, any, or all")
	return cmd
}

func newRemoveCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove <participant-id>",
		Short: "Remove a participant and all their marks (viewer only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			c, err := app.authedClient()
			if err != nil {
				return writeErr(cmd, err)
			}

			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "remove participant %s and every mark they made? type the id to confirm: ", id)
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return writeErr(cmd, errors.New("removal aborted"))
				}
				if strings.TrimSpace(line) != id {
					return writeErr(cmd, errors.New("removal aborted: confirmation did not match"))
				}
			}

			if err := c.RemoveParticipant(cmd.Context(), id); err != nil {
				return writeErr(cmd, err)
			}

			return emit(cmd, app, map[string]any{"removed": id}, func(w io.Writer) {
				fmt.Fprintf(w, "removed %s\n", id)
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	return cmd
}
