package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jw6ventures/openday/internal/availability"
)

// HTTPProvider looks holidays up from a nager.date-compatible API
// (GET {base}/api/v3/PublicHolidays/{year}/{country}).
type HTTPProvider struct {
	baseURL string
	country string
	client  *http.Client
}

func NewHTTPProvider(baseURL, country string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		country: country,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (p *HTTPProvider) Holidays(ctx context.Context, year int) ([]Holiday, error) {
	url := fmt.Sprintf("%s/api/v3/PublicHolidays/%d/%s", p.baseURL, year, p.country)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("holiday lookup: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("holiday lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("holiday lookup: %s returned %s", p.country, resp.Status)
	}

	var rows []struct {
		Date      string `json:"date"`
		LocalName string `json:"localName"`
		Name      string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("holiday lookup: decode: %w", err)
	}

	out := make([]Holiday, 0, len(rows))
	for _, row := range rows {
		day, err := availability.ParseDay(row.Date)
		if err != nil {
			// Skip rows with dates we cannot canonicalize.
			continue
		}
		out = append(out, Holiday{Date: day, LocalName: row.LocalName, Name: row.Name})
	}
	return out, nil
}
