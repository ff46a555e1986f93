package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jw6ventures/openday/internal/availability"
)

func newMarksCmd(app *App) *cobra.Command {
	var participant string

	cmd := &cobra.Command{
		Use:   "marks",
		Short: "List unavailable days",
		Long: "List your own unavailable days. The viewer reads any participant's\n" +
			"marks with --participant.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.authedClient()
			if err != nil {
				return writeErr(cmd, err)
			}

			id := participant
			if id == "" {
				login, err := c.Login(cmd.Context())
				if err != nil {
					return writeErr(cmd, err)
				}
				if login.Viewer || login.Participant == nil {
					return writeErr(cmd, errors.New("the viewer has no marks of their own; pass --participant"))
				}
				id = login.Participant.ID
			}

			days, err := c.FetchMarks(cmd.Context(), id)
			if err != nil {
				return writeErr(cmd, err)
			}

			return emit(cmd, app, dayList(days), func(w io.Writer) {
				if len(days) == 0 {
					fmt.Fprintln(w, "no unavailable days")
					return
				}
				for _, d := range days {
					fmt.Fprintln(w, d)
				}
			})
		},
	}

	cmd.Flags().StringVar(&participant, "participant", "", "Participant id to read (viewer only)")
	return cmd
}

func newToggleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <date>...",
		Short: "Flip dates between available and unavailable",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			days := make([]availability.Day, 0, len(args))
			for _, arg := range args {
				day, err := parseDayArg(arg)
				if err != nil {
					return writeErr(cmd, err)
				}
				days = append(days, day)
			}

			engine, err := app.editSession(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}

			requested := availability.NewDaySet()
			for _, day := range days {
				// The engine ignores out-of-window days quietly; tell
				// the user instead.
				if !engine.Window().Contains(day) {
					return writeErr(cmd, fmt.Errorf("%s is outside the coordination window", day))
				}
				requested.Add(day)
				engine.Toggle(cmd.Context(), day)
			}
			engine.Wait()

			return emit(cmd, app, map[string]any{"days": dayList(engine.Days())}, func(w io.Writer) {
				for _, day := range requested.Days() {
					if engine.Unavailable(day) {
						fmt.Fprintf(w, "%s is now unavailable\n", day)
					} else {
						fmt.Fprintf(w, "%s is now available\n", day)
					}
				}
			})
		},
	}
}

func newBlockCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "block <from> <to>",
		Short: "Mark every day in a range unavailable",
		Long: "Mark every day between the two dates unavailable, inclusive. Days\n" +
			"already marked stay marked; block never clears anything.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseDayArg(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			to, err := parseDayArg(args[1])
			if err != nil {
				return writeErr(cmd, err)
			}

			engine, err := app.editSession(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}

			before := availability.NewDaySet(engine.Days()...)
			engine.DragRange(cmd.Context(), from, to, true)
			engine.Wait()

			var added []availability.Day
			for _, day := range engine.Days() {
				if !before.Contains(day) {
					added = append(added, day)
				}
			}

			return emit(cmd, app, map[string]any{
				"added": dayList(added),
				"days":  dayList(engine.Days()),
			}, func(w io.Writer) {
				if len(added) == 0 {
					fmt.Fprintln(w, "nothing to mark: every day in the range was already unavailable or outside the window")
					return
				}
				fmt.Fprintf(w, "marked %d days unavailable:\n", len(added))
				for _, day := range added {
					fmt.Fprintln(w, day)
				}
			})
		},
	}
}

func dayList(days []availability.Day) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, string(d))
	}
	return out
}
