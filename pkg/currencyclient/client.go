/**
 * @description
 * This package provides a client for the exchange-rate API used to keep
 * cross-currency subscription amounts current. The upstream endpoint returns
 * the full USD-based rate table in one call, so the client caches it briefly
 * to let the refresh job resolve many currencies from a single request.
 */
package currencyclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// cacheTTL bounds how long one fetched rate table is reused.
const cacheTTL = time.Hour

// Client is a client for the exchange-rate API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	rates     map[string]float64
	fetchedAt time.Time
}

// NewClient creates a new exchange-rate client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type ratesResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// GetExchangeRate returns the rate converting one unit of fromCurrency into
// the display currency (the table's base).
func (c *Client) GetExchangeRate(ctx context.Context, fromCurrency string) (float64, error) {
	rates, err := c.getRates(ctx)
	if err != nil {
		return 0, err
	}

	rate, ok := rates[fromCurrency]
	if !ok {
		return 0, fmt.Errorf("no exchange rate for currency %q", fromCurrency)
	}
	if rate == 0 {
		return 0, fmt.Errorf("zero exchange rate for currency %q", fromCurrency)
	}
	// The table maps base -> currency; converting back into the base inverts it.
	return 1 / rate, nil
}

func (c *Client) getRates(ctx context.Context) (map[string]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rates != nil && time.Since(c.fetchedAt) < cacheTTL {
		return c.rates, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange rate API returned status %d", resp.StatusCode)
	}

	var parsed ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Rates) == 0 {
		return nil, fmt.Errorf("exchange rate API returned an empty rate table")
	}

	c.rates = parsed.Rates
	c.fetchedAt = time.Now()
	return c.rates, nil
}
