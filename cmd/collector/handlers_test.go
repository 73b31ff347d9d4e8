package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elad014/stockwatch/pkg/alphavantage"
	"github.com/elad014/stockwatch/pkg/logger"
	"github.com/elad014/stockwatch/pkg/models"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	m.Run()
}

type fakeProvider struct {
	quote models.Quote
	err   error
	last  string
}

func (f *fakeProvider) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	f.last = symbol
	if f.err != nil {
		return models.Quote{}, f.err
	}
	return f.quote, nil
}

func TestStockHandler_Success(t *testing.T) {
	provider := &fakeProvider{quote: models.Quote{Symbol: "AAPL", Price: 189.25, Volume: 52000000}}
	srv := NewServer(provider)

	req := httptest.NewRequest(http.MethodGet, "/stock/aapl", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "AAPL", provider.last, "symbol should be normalized before the provider call")

	var quote models.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	require.Equal(t, "AAPL", quote.Symbol)
	require.Equal(t, 189.25, quote.Price)
}

func TestStockHandler_InvalidSymbol(t *testing.T) {
	provider := &fakeProvider{}
	srv := NewServer(provider)

	req := httptest.NewRequest(http.MethodGet, "/stock/WAYTOOLONGSYMBOL", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, provider.last, "invalid symbols must be rejected before the provider call")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["error"])
}

func TestStockHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", alphavantage.ErrSymbolNotFound, http.StatusNotFound},
		{"rate limited", alphavantage.ErrRateLimited, http.StatusTooManyRequests},
		{"unavailable", alphavantage.ErrUnavailable, http.StatusBadGateway},
		{"unknown", context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&fakeProvider{err: tt.err})

			req := httptest.NewRequest(http.MethodGet, "/stock/AAPL", nil)
			rec := httptest.NewRecorder()
			srv.Routes().ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestHealthHandler(t *testing.T) {
	srv := NewServer(&fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
}
