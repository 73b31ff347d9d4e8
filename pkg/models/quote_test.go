package models

import (
    "testing"
)

func TestSafeFloat(t *testing.T) {
    cases := []struct {
        name string
        in   string
        want float64
    }{
        {"plain", "150.25", 150.25},
        {"padded", " 150.25 ", 150.25},
        {"empty", "", 0},
        {"garbage", "not-a-number", 0},
        {"negative", "-3.5", -3.5},
    }
    for _, c := range cases {
        t.Run(c.name, func(t *testing.T) {
            if got := SafeFloat(c.in); got != c.want {
                t.Errorf("SafeFloat(%q) = %v; want %v", c.in, got, c.want)
            }
        })
    }
}

func TestSafePercent(t *testing.T) {
    cases := []struct {
        name string
        in   string
        want float64
    }{
        {"with sign", "1.2300%", 1.23},
        {"without sign", "1.23", 1.23},
        {"negative", "-0.4567%", -0.4567},
        {"empty", "", 0},
    }
    for _, c := range cases {
        t.Run(c.name, func(t *testing.T) {
            if got := SafePercent(c.in); got != c.want {
                t.Errorf("SafePercent(%q) = %v; want %v", c.in, got, c.want)
            }
        })
    }
}

func TestSafeInt(t *testing.T) {
    cases := []struct {
        name string
        in   string
        want int64
    }{
        {"plain", "50000000", 50000000},
        {"float form", "50000000.0", 50000000},
        {"empty", "", 0},
        {"garbage", "n/a", 0},
    }
    for _, c := range cases {
        t.Run(c.name, func(t *testing.T) {
            if got := SafeInt(c.in); got != c.want {
                t.Errorf("SafeInt(%q) = %v; want %v", c.in, got, c.want)
            }
        })
    }
}

func TestQuoteJSONRoundTrip(t *testing.T) {
    q := Quote{
        Symbol:         "AAPL",
        Price:          150.25,
        Change:         1.5,
        ChangePercent:  1.01,
        Volume:         50000000,
        LastTradingDay: "2025-07-10",
        Timestamp:      "2025-07-10T12:34:56Z",
    }
    s, err := q.ToJSON()
    if err != nil {
        t.Fatalf("ToJSON: %v", err)
    }
    got, err := QuoteFromJSON(s)
    if err != nil {
        t.Fatalf("QuoteFromJSON: %v", err)
    }
    if got != q {
        t.Errorf("round trip = %+v; want %+v", got, q)
    }
}

func TestAddStockRequest(t *testing.T) {
    r := AddStockRequest{Ticker: "  aapl "}
    r.Sanitize()
    if r.Ticker != "AAPL" {
        t.Errorf("Ticker = %q; want AAPL", r.Ticker)
    }
    if err := r.Validate(); err != nil {
        t.Errorf("unexpected validation error: %v", err)
    }

    bad := AddStockRequest{Ticker: "WAYTOOLONGSYMBOL"}
    if err := bad.Validate(); err == nil {
        t.Error("expected validation error for overlong ticker")
    }
}
