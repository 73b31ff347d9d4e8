package alphavantage

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net"
    "net/http"
    "net/url"
    "time"

    "github.com/elad014/stockwatch/pkg/metrics"
    "github.com/elad014/stockwatch/pkg/models"
    "github.com/elad014/stockwatch/pkg/validation"
)

// Error classes callers branch on with errors.Is. Every failure out of
// Quote wraps exactly one of these.
var (
    ErrRateLimited    = errors.New("provider rate limit exceeded")
    ErrSymbolNotFound = errors.New("symbol not found")
    ErrUnavailable    = errors.New("provider unavailable")
)

// Config is passed in explicitly; the client never reads the process
// environment.
type Config struct {
    APIKey  string
    BaseURL string
    Timeout time.Duration
}

// Client fetches GLOBAL_QUOTE snapshots from Alpha Vantage. One outbound
// request per Quote call; no caching, no retry. Retry policy belongs to
// the scheduler tick, not here.
type Client struct {
    cfg  Config
    http *http.Client
}

// New constructs a Client with a tuned transport.
func New(cfg Config) *Client {
    if cfg.Timeout <= 0 {
        cfg.Timeout = 10 * time.Second
    }
    transport := &http.Transport{
        Proxy:               http.ProxyFromEnvironment,
        DialContext:         (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
        MaxIdleConns:        10,
        MaxIdleConnsPerHost: 5,
        IdleConnTimeout:     30 * time.Second,
    }
    return &Client{
        cfg:  cfg,
        http: &http.Client{Timeout: cfg.Timeout, Transport: transport},
    }
}

// globalQuotePayload mirrors the provider's GLOBAL_QUOTE response. The
// numbered keys are the provider's, not ours.
type globalQuotePayload struct {
    GlobalQuote  map[string]string `json:"Global Quote"`
    ErrorMessage string            `json:"Error Message"`
    Note         string            `json:"Note"`
    Information  string            `json:"Information"`
}

// Quote fetches one snapshot for symbol. The symbol is uppercased before
// the call; the provider matches case-insensitively anyway.
func (c *Client) Quote(ctx context.Context, symbol string) (models.Quote, error) {
    start := time.Now()
    defer func() {
        metrics.ProviderRequestDuration.Observe(time.Since(start).Seconds())
    }()

    symbol = validation.NormalizeTicker(symbol)

    q := url.Values{}
    q.Set("function", "GLOBAL_QUOTE")
    q.Set("symbol", symbol)
    q.Set("apikey", c.cfg.APIKey)
    q.Set("datatype", "json")

    req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
    if err != nil {
        return models.Quote{}, fmt.Errorf("build request: %w", err)
    }

    resp, err := c.http.Do(req)
    if err != nil {
        metrics.ProviderErrors.WithLabelValues("transport").Inc()
        return models.Quote{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
    }
    defer resp.Body.Close()

    if resp.StatusCode == http.StatusTooManyRequests {
        metrics.ProviderErrors.WithLabelValues("rate_limit").Inc()
        return models.Quote{}, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
    }
    if resp.StatusCode != http.StatusOK {
        metrics.ProviderErrors.WithLabelValues("status").Inc()
        return models.Quote{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
    }

    var payload globalQuotePayload
    if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
        metrics.ProviderErrors.WithLabelValues("decode").Inc()
        return models.Quote{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
    }

    // The provider reports throttling as a 200 with a Note (free tier) or
    // an Information field (expired key), and bad symbols as either an
    // Error Message or an empty quote object.
    if payload.Note != "" || payload.Information != "" {
        metrics.ProviderErrors.WithLabelValues("rate_limit").Inc()
        return models.Quote{}, fmt.Errorf("%w: %s%s", ErrRateLimited, payload.Note, payload.Information)
    }
    if payload.ErrorMessage != "" {
        metrics.ProviderErrors.WithLabelValues("not_found").Inc()
        return models.Quote{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, payload.ErrorMessage)
    }
    if len(payload.GlobalQuote) == 0 {
        metrics.ProviderErrors.WithLabelValues("not_found").Inc()
        return models.Quote{}, fmt.Errorf("%w: empty quote for %s", ErrSymbolNotFound, symbol)
    }

    quote := models.NewQuote(symbol)
    if s := payload.GlobalQuote["01. symbol"]; s != "" {
        quote.Symbol = s
    }
    quote.Price = models.SafeFloat(payload.GlobalQuote["05. price"])
    quote.Change = models.SafeFloat(payload.GlobalQuote["09. change"])
    quote.ChangePercent = models.SafePercent(payload.GlobalQuote["10. change percent"])
    quote.Volume = models.SafeInt(payload.GlobalQuote["06. volume"])
    quote.LastTradingDay = payload.GlobalQuote["07. latest trading day"]

    return quote, nil
}

// ErrorClass maps an error from Quote onto its metrics/log label.
func ErrorClass(err error) string {
    switch {
    case errors.Is(err, ErrRateLimited):
        return "rate_limit"
    case errors.Is(err, ErrSymbolNotFound):
        return "not_found"
    case errors.Is(err, ErrUnavailable):
        return "unavailable"
    default:
        return "unknown"
    }
}
