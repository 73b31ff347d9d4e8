package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/elad014/stockwatch/pkg/alphavantage"
	"github.com/elad014/stockwatch/pkg/logger"
	"github.com/elad014/stockwatch/pkg/metrics"
	"github.com/elad014/stockwatch/pkg/models"
	"github.com/elad014/stockwatch/pkg/validation"
)

// quoteProvider yields the current quote for a symbol.
type quoteProvider interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
}

// Server holds the collector's HTTP handlers.
type Server struct {
	quotes quoteProvider
}

// NewServer creates a collector server around a quote provider.
func NewServer(quotes quoteProvider) *Server {
	return &Server{quotes: quotes}
}

// Routes builds the collector router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(metricsMiddleware)

	r.Get("/", s.indexHandler)
	r.Get("/stock/{symbol}", s.stockHandler)
	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", metrics.Handler())

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.Error("JSON encoding error", zap.Error(err))
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// indexHandler describes the service.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"service": "stock-data-collector",
		"status":  "healthy",
		"version": "1.0.0",
		"usage":   "GET /stock/{symbol}",
		"example": "/stock/AAPL",
	})
}

// healthHandler reports liveness. The collector holds no state, so
// being able to answer is the whole check.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// stockHandler fetches the current quote for one symbol.
func (s *Server) stockHandler(w http.ResponseWriter, r *http.Request) {
	symbol := validation.NormalizeTicker(chi.URLParam(r, "symbol"))
	if !validation.IsValidTicker(symbol) {
		s.writeError(w, http.StatusBadRequest, "invalid symbol")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	quote, err := s.quotes.Quote(ctx, symbol)
	if err != nil {
		status := statusForError(err)
		logger.Log.Warn("quote fetch failed",
			zap.String("symbol", symbol),
			zap.String("class", alphavantage.ErrorClass(err)),
			zap.Int("status", status),
			zap.Error(err))
		s.writeError(w, status, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, quote)
}

// statusForError maps provider failures onto HTTP status codes so the
// scheduler can classify them without parsing bodies.
func statusForError(err error) int {
	switch {
	case errors.Is(err, alphavantage.ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, alphavantage.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, alphavantage.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		duration := time.Since(start).Seconds()

		status := strconv.Itoa(rec.status)
		metrics.CollectorRequestDuration.WithLabelValues(r.URL.Path, status).Observe(duration)
		metrics.CollectorRequestTotal.WithLabelValues(r.URL.Path, status).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
