package models

import (
    "database/sql"
    "time"

    "github.com/elad014/stockwatch/pkg/validation"
)

// Stock is a tracked instrument. Price and volume are null until the
// first successful refresh writes them; the scheduler is their only
// writer after that.
type Stock struct {
    Name             string          `json:"name"`
    Company          string          `json:"company,omitempty"`
    Price            sql.NullFloat64 `json:"-"`
    TradingVolume    sql.NullInt64   `json:"-"`
    AvgTradingVolume sql.NullFloat64 `json:"-"`
    UpdatedAt        time.Time       `json:"updated_at"`
}

// StockView is the JSON shape served by the web tier; null columns render
// as JSON null rather than zero so stale-vs-absent stays visible.
type StockView struct {
    Name             string   `json:"name"`
    Company          string   `json:"company,omitempty"`
    Price            *float64 `json:"price"`
    TradingVolume    *int64   `json:"trading_volume"`
    AvgTradingVolume *float64 `json:"avg_trading_volume,omitempty"`
    UpdatedAt        string   `json:"updated_at"`
}

// View converts a Stock row into its JSON representation.
func (s Stock) View() StockView {
    v := StockView{
        Name:      s.Name,
        Company:   s.Company,
        UpdatedAt: s.UpdatedAt.UTC().Format(time.RFC3339),
    }
    if s.Price.Valid {
        p := s.Price.Float64
        v.Price = &p
    }
    if s.TradingVolume.Valid {
        tv := s.TradingVolume.Int64
        v.TradingVolume = &tv
    }
    if s.AvgTradingVolume.Valid {
        av := s.AvgTradingVolume.Float64
        v.AvgTradingVolume = &av
    }
    return v
}

// AddStockRequest is the watchlist-add payload.
type AddStockRequest struct {
    Ticker string `json:"ticker" validate:"required,ticker"`
}

// Validate validates the AddStockRequest struct
func (r AddStockRequest) Validate() error {
    if errors := validation.ValidateStruct(r); len(errors) > 0 {
        return errors
    }
    return nil
}

// Sanitize normalizes the user-supplied ticker before validation.
func (r *AddStockRequest) Sanitize() {
    r.Ticker = validation.NormalizeTicker(validation.SanitizeString(r.Ticker))
}
