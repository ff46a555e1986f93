// Package api defines the JSON wire types shared by the server handlers
// and the terminal client.
package api

// Credentials is the login request body.
type Credentials struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// Participant is an identity with its credentials stripped. Secret hashes
// never cross the HTTP boundary.
type Participant struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// Window describes the coordination window clients operate in.
type Window struct {
	Year       int    `json:"year"`
	StartMonth int    `json:"start_month"`
	EndMonth   int    `json:"end_month"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

// LoginResponse reports who authenticated. Participant is nil for the
// privileged viewer.
type LoginResponse struct {
	Viewer      bool         `json:"viewer"`
	Participant *Participant `json:"participant,omitempty"`
	Window      Window       `json:"window"`
}

// Availability is the privileged aggregate view: every participant, their
// unavailable days keyed by participant ID, and the days the requested
// classification mode flagged.
type Availability struct {
	Mode         string              `json:"mode"`
	Participants []Participant       `json:"participants"`
	Marks        map[string][]string `json:"marks"`
	Flagged      []string            `json:"flagged"`
}

// Holiday is one public holiday inside the window.
type Holiday struct {
	Date      string `json:"date"`
	LocalName string `json:"local_name"`
	Name      string `json:"name"`
}

// Error is the JSON error envelope.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in the envelope.
const (
	CodeMissingField      = "missing_field"
	CodeInvalidCredential = "invalid_credential"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeBadRequest        = "bad_request"
	CodeRateLimited       = "rate_limited"
	CodeStoreUnavailable  = "store_unavailable"
	CodeInternal          = "internal"
)
