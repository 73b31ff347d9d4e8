// Package quotesource is the scheduler's view of the collector service.
// It speaks the collector's HTTP surface and translates its status codes
// back into the provider error taxonomy, so callers can classify
// failures with errors.Is regardless of which hop produced them.
package quotesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/elad014/stockwatch/pkg/alphavantage"
	"github.com/elad014/stockwatch/pkg/models"
)

// Source yields the freshest quote for a symbol.
type Source interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
}

// Client fetches quotes from the collector over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a collector client. baseURL has no trailing slash.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// Quote fetches GET {base}/stock/{symbol} and maps the response.
func (c *Client) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	endpoint := c.baseURL + "/stock/" + url.PathEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Quote{}, fmt.Errorf("build request for %s: %w", symbol, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Quote{}, fmt.Errorf("collector unreachable for %s: %w", symbol, alphavantage.ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Quote{}, fmt.Errorf("read response for %s: %w", symbol, alphavantage.ErrUnavailable)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusBadRequest:
		return models.Quote{}, fmt.Errorf("symbol %s rejected by collector: %w", symbol, alphavantage.ErrSymbolNotFound)
	case http.StatusTooManyRequests:
		return models.Quote{}, fmt.Errorf("quota exhausted fetching %s: %w", symbol, alphavantage.ErrRateLimited)
	default:
		return models.Quote{}, fmt.Errorf("collector returned %d for %s: %w", resp.StatusCode, symbol, alphavantage.ErrUnavailable)
	}

	// A 200 carrying an "error" key is still a failure.
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return models.Quote{}, fmt.Errorf("collector error for %s: %s: %w", symbol, eb.Error, alphavantage.ErrUnavailable)
	}

	quote, err := models.QuoteFromJSON(string(body))
	if err != nil {
		return models.Quote{}, fmt.Errorf("malformed quote for %s: %w", symbol, err)
	}
	if quote.Symbol == "" {
		quote.Symbol = symbol
	}
	return quote, nil
}
