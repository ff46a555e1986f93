// Package cli implements the openday terminal client. Commands talk to a
// running server over the JSON API with HTTP Basic credentials taken from
// flags or the environment.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jw6ventures/openday/internal/api"
	"github.com/jw6ventures/openday/internal/availability"
	"github.com/jw6ventures/openday/internal/client"
)

// App carries the persistent flag state shared by every command.
type App struct {
	ServerURL string
	Name      string
	Secret    string
	JSON      bool
}

// NewRootCmd builds the openday command tree.
func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:           "openday",
		Short:         "Coordinate a group's open days",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&app.ServerURL, "server", envOr("OPENDAY_SERVER", "http://localhost:8080"), "Base URL of the openday server")
	cmd.PersistentFlags().StringVar(&app.Name, "name", envOr("OPENDAY_NAME", ""), "Login name (participant label or viewer name)")
	cmd.PersistentFlags().StringVar(&app.Secret, "secret", envOr("OPENDAY_SECRET", ""), "Login secret")
	cmd.PersistentFlags().BoolVar(&app.JSON, "json", false, "Emit JSON instead of text")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newWindowCmd(app))
	cmd.AddCommand(newMarksCmd(app))
	cmd.AddCommand(newToggleCmd(app))
	cmd.AddCommand(newBlockCmd(app))
	cmd.AddCommand(newParticipantsCmd(app))
	cmd.AddCommand(newOverviewCmd(app))
	cmd.AddCommand(newRemoveCmd(app))
	cmd.AddCommand(newHolidaysCmd(app))

	return cmd
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// emit writes the command result: a JSON envelope under --json, the
// command's own text rendering otherwise.
func emit(cmd *cobra.Command, app *App, v any, text func(w io.Writer)) error {
	if app.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"data": v})
	}
	text(cmd.OutOrStdout())
	return nil
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "error:", err.Error())
	return err
}

// apiClient builds the HTTP client from the app's connection flags.
func (app *App) apiClient() (*client.Client, error) {
	return client.NewClient(app.ServerURL, app.Name, app.Secret)
}

var errCredentialsRequired = errors.New("credentials required: pass --name and --secret or set OPENDAY_NAME and OPENDAY_SECRET")

// authedClient is apiClient plus the check that credentials are present,
// for commands that cannot run anonymously.
func (app *App) authedClient() (*client.Client, error) {
	if app.Name == "" || app.Secret == "" {
		return nil, errCredentialsRequired
	}
	return app.apiClient()
}

// editSession logs in and builds an editing engine seeded with the
// participant's current marks. The viewer has no marks and cannot edit.
func (app *App) editSession(ctx context.Context) (*client.Engine, error) {
	c, err := app.authedClient()
	if err != nil {
		return nil, err
	}

	login, err := c.Login(ctx)
	if err != nil {
		return nil, err
	}
	if login.Viewer || login.Participant == nil {
		return nil, errors.New("the viewer has no marks to edit")
	}

	marks, err := c.FetchMarks(ctx, login.Participant.ID)
	if err != nil {
		return nil, err
	}

	return client.NewEngine(c, windowOf(login.Window), login.Participant.ID, marks), nil
}

func windowOf(w api.Window) availability.Window {
	return availability.Window{
		Year:       w.Year,
		StartMonth: time.Month(w.StartMonth),
		EndMonth:   time.Month(w.EndMonth),
	}
}

func parseDayArg(s string) (availability.Day, error) {
	day, err := availability.ParseDay(s)
	if err != nil {
		return "", fmt.Errorf("%q is not a date in YYYY-MM-DD form", s)
	}
	return day, nil
}
