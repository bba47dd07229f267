package goldapi

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"time"
)

// Spot is a spot price row from the GoldAPI.
type Spot struct {
	Metal     string  `json:"metal"`
	Currency  string  `json:"currency"`
	Price     float64 `json:"price"`
	Change    float64 `json:"ch"`
	ChangePct float64 `json:"chp"`
	Ask       float64 `json:"ask"`
	Bid       float64 `json:"bid"`
	High24    float64 `json:"high_24"`
	Low24     float64 `json:"low_24"`
	Timestamp int64   `json:"timestamp"`
}

// Time returns the sample timestamp, falling back to now for a missing epoch.
func (s Spot) Time() time.Time {
	if s.Timestamp <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(s.Timestamp, 0).UTC()
}

// GetSpot retrieves the current spot price for a metal/currency pair,
// e.g. GetSpot(ctx, "XAU", "USD").
func (c *GoldAPIClient) GetSpot(ctx context.Context, metal, currency string, opts ...GoldAPIClientOption) (Spot, error) {
	var override = &GoldAPIClient{
		baseURL:    c.baseURL,
		token:      c.token,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
		query:      c.query,
	}
	for _, opt := range opts {
		opt(override)
	}

	query := maps.Clone(override.query)

	url := fmt.Sprintf("%s/%s/%s", override.baseURL, metal, currency)
	if len(query) > 0 {
		url = fmt.Sprintf("%s?%s", url, query.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Spot{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header
	req.Header.Set("x-access-token", override.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := override.httpClient.Do(req)
	if err != nil {
		return Spot{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusUnauthorized, http.StatusForbidden:
		return Spot{}, fmt.Errorf("unauthorized")

	case http.StatusTooManyRequests:
		return Spot{}, fmt.Errorf("rate limited")

	default:
		return Spot{}, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	var spot Spot
	dec := json.NewDecoder(res.Body)
	if err := dec.Decode(&spot); err != nil {
		return Spot{}, fmt.Errorf("decoding spot response: %w", err)
	}
	if spot.Price == 0 {
		// The API reports errors as 200s with an "error" field and no price.
		return Spot{}, fmt.Errorf("empty spot response for %s/%s", metal, currency)
	}
	return spot, nil
}
