package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jw6ventures/openday/internal/api"
	"github.com/jw6ventures/openday/internal/availability"
)

// Client speaks the OpenDay JSON API. Requests carry HTTP Basic
// credentials, so there is no cookie or CSRF state to manage; the login
// call exists to verify credentials and learn the window before editing.
type Client struct {
	baseURL string
	name    string
	secret  string
	http    *http.Client
}

// NewClient builds a client for the server at baseURL.
func NewClient(baseURL, name, secret string) (*Client, error) {
	trimmed := strings.TrimRight(baseURL, "/")
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	return &Client{
		baseURL: trimmed,
		name:    name,
		secret:  secret,
		http:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.Status)
}

// Login verifies the client's credentials, creating the participant on
// first use, and reports who they resolved to.
func (c *Client) Login(ctx context.Context) (api.LoginResponse, error) {
	var resp api.LoginResponse
	creds := api.Credentials{Name: c.name, Secret: c.secret}
	err := c.do(ctx, http.MethodPost, "/api/login", nil, creds, &resp)
	return resp, err
}

// Window fetches the coordination window. It needs no credentials.
func (c *Client) Window(ctx context.Context) (api.Window, error) {
	var w api.Window
	err := c.do(ctx, http.MethodGet, "/api/window", nil, nil, &w)
	return w, err
}

// Participants lists every registered participant.
func (c *Client) Participants(ctx context.Context) ([]api.Participant, error) {
	var out []api.Participant
	err := c.do(ctx, http.MethodGet, "/api/participants", nil, nil, &out)
	return out, err
}

// FetchMarks returns the participant's unavailable days.
func (c *Client) FetchMarks(ctx context.Context, participantID string) ([]availability.Day, error) {
	var raw []string
	if err := c.do(ctx, http.MethodGet, marksPath(participantID), nil, nil, &raw); err != nil {
		return nil, err
	}

	days := make([]availability.Day, 0, len(raw))
	for _, s := range raw {
		day, err := availability.ParseDay(s)
		if err != nil {
			return nil, fmt.Errorf("malformed day %q in marks response", s)
		}
		days = append(days, day)
	}
	return days, nil
}

// SetUnavailable marks one day unavailable.
func (c *Client) SetUnavailable(ctx context.Context, participantID string, day availability.Day) error {
	return c.do(ctx, http.MethodPut, markPath(participantID, day), nil, nil, nil)
}

// ClearUnavailable removes one day's mark.
func (c *Client) ClearUnavailable(ctx context.Context, participantID string, day availability.Day) error {
	return c.do(ctx, http.MethodDelete, markPath(participantID, day), nil, nil, nil)
}

// Availability fetches the privileged aggregate view. An empty mode keeps
// the server's configured default.
func (c *Client) Availability(ctx context.Context, mode string) (api.Availability, error) {
	var query url.Values
	if mode != "" {
		query = url.Values{"mode": []string{mode}}
	}

	var out api.Availability
	err := c.do(ctx, http.MethodGet, "/api/availability", query, nil, &out)
	return out, err
}

// RemoveParticipant deletes a participant and all their marks. The id is
// repeated as the confirm parameter the server demands.
func (c *Client) RemoveParticipant(ctx context.Context, participantID string) error {
	query := url.Values{"confirm": []string{participantID}}
	return c.do(ctx, http.MethodDelete, "/api/participants/"+url.PathEscape(participantID), query, nil, nil)
}

// Holidays lists the public holidays inside the window.
func (c *Client) Holidays(ctx context.Context) ([]api.Holiday, error) {
	var out []api.Holiday
	err := c.do(ctx, http.MethodGet, "/api/holidays", nil, nil, &out)
	return out, err
}

func marksPath(participantID string) string {
	return "/api/participants/" + url.PathEscape(participantID) + "/marks"
}

func markPath(participantID string, day availability.Day) string {
	return marksPath(participantID) + "/" + string(day)
}

// do issues one request and decodes the response into out when it is
// non-nil. Non-2xx statuses come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		rd = bytes.NewReader(buf)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.name != "" {
		req.SetBasicAuth(c.name, c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope api.Error
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&envelope); err == nil {
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Message
	}
	return apiErr
}
