package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newHolidaysCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "holidays",
		Short: "List public holidays inside the window",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.authedClient()
			if err != nil {
				return writeErr(cmd, err)
			}

			holidays, err := c.Holidays(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}

			return emit(cmd, app, holidays, func(w io.Writer) {
				if len(holidays) == 0 {
					fmt.Fprintln(w, "no holidays in the window")
					return
				}
				for _, h := range holidays {
					if h.Name != "" && h.Name != h.LocalName {
						fmt.Fprintf(w, "%s  %s (%s)\n", h.Date, h.LocalName, h.Name)
						continue
					}
					fmt.Fprintf(w, "%s  %s\n", h.Date, h.LocalName)
				}
			})
		},
	}
}
