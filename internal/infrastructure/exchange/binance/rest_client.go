package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RestClient proxies Binance spot REST endpoints. The hub exposes these to
// browser clients so the UI never talks to Binance directly (and never hits
// its CORS restrictions).
type RestClient struct {
	baseURL string
	client  *http.Client
}

func NewRestClient(baseURL string) *RestClient {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &RestClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Klines fetches candlesticks with the caller's query passed through
// verbatim (symbol, interval, limit, startTime, endTime).
func (c *RestClient) Klines(ctx context.Context, query url.Values) (json.RawMessage, error) {
	return c.get(ctx, "/api/v3/klines", query)
}

// AggTrades fetches aggregated trades with the caller's query passed
// through verbatim.
func (c *RestClient) AggTrades(ctx context.Context, query url.Values) (json.RawMessage, error) {
	return c.get(ctx, "/api/v3/aggTrades", query)
}

func (c *RestClient) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance api error: %d %s", resp.StatusCode, string(body))
	}
	return json.RawMessage(body), nil
}
