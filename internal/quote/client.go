package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client talks to an IEX Cloud compatible quote endpoint:
// GET {baseURL}/stock/{symbol}/quote?token={apiKey}
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// iexQuote is the subset of the provider response we use.
type iexQuote struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"companyName"`
	LatestPrice float64 `json:"latestPrice"`
}

// NewClient creates a provider client. Requests time out after timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Lookup fetches the current quote for symbol.
func (c *Client) Lookup(ctx context.Context, symbol string) (Quote, error) {
	if symbol == "" {
		return Quote{}, ErrNotFound
	}

	endpoint := fmt.Sprintf("%s/stock/%s/quote?token=%s",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Quote{}, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var q iexQuote
	if err = json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return Quote{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if q.Symbol == "" || q.LatestPrice <= 0 {
		return Quote{}, ErrNotFound
	}

	return Quote{
		Symbol: q.Symbol,
		Name:   q.CompanyName,
		Price:  decimal.NewFromFloat(q.LatestPrice),
	}, nil
}
