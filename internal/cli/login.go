package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newLoginCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Verify credentials and show who you are",
		Long: "Verify credentials against the server. A participant name that has\n" +
			"never logged in before is registered on the spot and owns that name\n" +
			"from then on.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.authedClient()
			if err != nil {
				return writeErr(cmd, err)
			}

			resp, err := c.Login(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}

			return emit(cmd, app, resp, func(w io.Writer) {
				if resp.Viewer {
					fmt.Fprintln(w, "logged in as the viewer")
				} else {
					fmt.Fprintf(w, "logged in as %s (id %s, color %s)\n",
						resp.Participant.Label, resp.Participant.ID, resp.Participant.Color)
				}
				fmt.Fprintf(w, "window: %s to %s\n", resp.Window.Start, resp.Window.End)
			})
		},
	}
}

func newWindowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "window",
		Short: "Show the coordination window",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.apiClient()
			if err != nil {
				return writeErr(cmd, err)
			}

			w, err := c.Window(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}

			return emit(cmd, app, w, func(out io.Writer) {
				fmt.Fprintf(out, "%d: %s to %s\n", w.Year, w.Start, w.End)
			})
		},
	}
}
