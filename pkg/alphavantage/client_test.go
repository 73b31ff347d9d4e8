package alphavantage

import (
    "context"
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
    t.Helper()
    srv := httptest.NewServer(handler)
    t.Cleanup(srv.Close)
    return New(Config{APIKey: "demo", BaseURL: srv.URL, Timeout: 2 * time.Second})
}

func TestQuote_Success(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        require.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
        require.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
        w.Write([]byte(`{"Global Quote": {
            "01. symbol": "AAPL",
            "05. price": "150.2500",
            "06. volume": "50000000",
            "07. latest trading day": "2025-07-10",
            "09. change": "1.5000",
            "10. change percent": "1.0100%"
        }}`))
    })

    q, err := c.Quote(context.Background(), "aapl")
    require.NoError(t, err)
    require.Equal(t, "AAPL", q.Symbol)
    require.Equal(t, 150.25, q.Price)
    require.Equal(t, int64(50000000), q.Volume)
    require.Equal(t, 1.5, q.Change)
    require.Equal(t, 1.01, q.ChangePercent)
    require.Equal(t, "2025-07-10", q.LastTradingDay)
    require.NotEmpty(t, q.Timestamp)
}

func TestQuote_RateLimitNote(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`))
    })

    _, err := c.Quote(context.Background(), "AAPL")
    require.ErrorIs(t, err, ErrRateLimited)
}

func TestQuote_EmptyQuoteIsNotFound(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        w.Write([]byte(`{"Global Quote": {}}`))
    })

    _, err := c.Quote(context.Background(), "INVALIDXYZ")
    require.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestQuote_ErrorMessageIsNotFound(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        w.Write([]byte(`{"Error Message": "Invalid API call."}`))
    })

    _, err := c.Quote(context.Background(), "INVALIDXYZ")
    require.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestQuote_TimeoutIsUnavailable(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        time.Sleep(200 * time.Millisecond)
    })
    c.http.Timeout = 50 * time.Millisecond

    _, err := c.Quote(context.Background(), "AAPL")
    require.ErrorIs(t, err, ErrUnavailable)
}

func TestQuote_ServerErrorIsUnavailable(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusBadGateway)
    })

    _, err := c.Quote(context.Background(), "AAPL")
    require.ErrorIs(t, err, ErrUnavailable)
}

func TestErrorClass(t *testing.T) {
    cases := []struct {
        err  error
        want string
    }{
        {ErrRateLimited, "rate_limit"},
        {ErrSymbolNotFound, "not_found"},
        {ErrUnavailable, "unavailable"},
        {errors.New("boom"), "unknown"},
    }
    for _, c := range cases {
        if got := ErrorClass(c.err); got != c.want {
            t.Errorf("ErrorClass(%v) = %q; want %q", c.err, got, c.want)
        }
    }
}
