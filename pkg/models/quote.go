package models

import (
    "encoding/json"
    "fmt"
    "strconv"
    "strings"
    "time"
)

// Quote is a point-in-time snapshot for one symbol. It is produced by the
// collector per request and consumed immediately; only price and volume
// survive into the stocks table.
type Quote struct {
    Symbol         string  `json:"symbol" validate:"required,ticker"`
    Price          float64 `json:"price" validate:"price"`
    Change         float64 `json:"change"`
    ChangePercent  float64 `json:"change_percent"`
    Volume         int64   `json:"volume" validate:"volume"`
    LastTradingDay string  `json:"last_trading_day"`
    Timestamp      string  `json:"timestamp"`
}

// NewQuote stamps a quote with the fetch time in UTC RFC3339.
func NewQuote(symbol string) Quote {
    return Quote{
        Symbol:    symbol,
        Timestamp: time.Now().UTC().Format(time.RFC3339),
    }
}

// ToJSON converts to JSON string for pub/sub
func (q Quote) ToJSON() (string, error) {
    data, err := json.Marshal(q)
    if err != nil {
        return "", fmt.Errorf("json marshal error: %w", err)
    }
    return string(data), nil
}

// QuoteFromJSON creates a Quote from a JSON string
func QuoteFromJSON(data string) (Quote, error) {
    var q Quote
    if err := json.Unmarshal([]byte(data), &q); err != nil {
        return q, fmt.Errorf("json unmarshal error: %w", err)
    }
    return q, nil
}

// SafeFloat parses a provider numeric field leniently: empty or
// malformed values become 0 rather than failing the whole quote.
func SafeFloat(s string) float64 {
    s = strings.TrimSpace(s)
    if s == "" {
        return 0
    }
    f, err := strconv.ParseFloat(s, 64)
    if err != nil {
        return 0
    }
    return f
}

// SafePercent parses a provider percentage field ("1.23%"), stripping
// the trailing percent sign before the numeric parse.
func SafePercent(s string) float64 {
    return SafeFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"))
}

// SafeInt parses a provider integer field leniently. Volumes sometimes
// arrive in scientific notation, so parse through float first.
func SafeInt(s string) int64 {
    s = strings.TrimSpace(s)
    if s == "" {
        return 0
    }
    f, err := strconv.ParseFloat(s, 64)
    if err != nil {
        return 0
    }
    return int64(f)
}
