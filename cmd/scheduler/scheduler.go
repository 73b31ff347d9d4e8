package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elad014/stockwatch/pkg/alphavantage"
	"github.com/elad014/stockwatch/pkg/database"
	"github.com/elad014/stockwatch/pkg/logger"
	"github.com/elad014/stockwatch/pkg/metrics"
	"github.com/elad014/stockwatch/pkg/models"
	"github.com/elad014/stockwatch/pkg/quotesource"
)

// quoteCache is the slice of the Redis client the scheduler needs.
type quoteCache interface {
	SetLatest(ctx context.Context, quote models.Quote) error
	PublishQuote(ctx context.Context, quote models.Quote) error
}

// Scheduler refreshes every tracked symbol on a fixed interval.
type Scheduler struct {
	repo     database.StockRepository
	source   quotesource.Source
	cache    quoteCache
	interval time.Duration
}

// NewScheduler wires a refresh loop. cache may be nil when Redis is
// not configured; caching is then skipped entirely.
func NewScheduler(repo database.StockRepository, source quotesource.Source, cache quoteCache, interval time.Duration) *Scheduler {
	return &Scheduler{repo: repo, source: source, cache: cache, interval: interval}
}

// Run executes one refresh immediately, then one per interval until the
// context is cancelled. A slow run delays the next tick rather than
// overlapping with it.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Log.Info("scheduler started", zap.Duration("interval", s.interval))

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce refreshes the whole watchlist. Fetch failures skip the one
// symbol; a storage write failure abandons the rest of the run since
// subsequent writes would hit the same backend.
func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	metrics.SchedulerTicks.Inc()
	defer func() {
		metrics.SchedulerRunDuration.Observe(time.Since(start).Seconds())
	}()

	symbols, err := s.repo.ListSymbols(ctx)
	if err != nil {
		logger.Log.Error("failed to read watchlist, skipping run", zap.Error(err))
		return
	}
	if len(symbols) == 0 {
		logger.Log.Info("watchlist empty, nothing to refresh")
		return
	}

	logger.Log.Info("refresh run started", zap.Int("symbols", len(symbols)))

	var succeeded, failed int
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}

		if err := s.refreshSymbol(ctx, symbol); err != nil {
			if errors.Is(err, errStorage) {
				logger.Log.Error("storage write failed, abandoning run",
					zap.String("symbol", symbol), zap.Error(err))
				return
			}
			failed++
			continue
		}
		succeeded++
	}

	logger.Log.Info("refresh run finished",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Duration("took", time.Since(start)))
}

// errStorage marks failures that abort the remainder of a run.
var errStorage = errors.New("storage write failed")

// refreshSymbol fetches one quote and persists it.
func (s *Scheduler) refreshSymbol(ctx context.Context, symbol string) error {
	quote, err := s.source.Quote(ctx, symbol)
	if err != nil {
		class := alphavantage.ErrorClass(err)
		metrics.SchedulerSymbolFailures.WithLabelValues(class).Inc()
		logger.Log.Warn("quote fetch failed, keeping previous values",
			zap.String("symbol", symbol),
			zap.String("class", class),
			zap.Error(err))
		return err
	}

	// Lenient payload parsing turns a missing price field into 0, which
	// the stocks table rejects. Treat it as a malformed response and
	// keep the previous values rather than letting the write fail.
	if quote.Price <= 0 {
		metrics.SchedulerSymbolFailures.WithLabelValues("malformed").Inc()
		logger.Log.Warn("quote has no usable price, keeping previous values",
			zap.String("symbol", symbol),
			zap.Float64("price", quote.Price))
		return fmt.Errorf("no usable price for %s", symbol)
	}

	if err := s.repo.UpdateQuote(ctx, symbol, quote.Price, quote.Volume); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// Removed from the watchlist mid-run; nothing to persist.
			metrics.SchedulerSymbolFailures.WithLabelValues("removed").Inc()
			logger.Log.Warn("symbol vanished during run", zap.String("symbol", symbol))
			return err
		}
		metrics.SchedulerSymbolFailures.WithLabelValues("storage").Inc()
		return errors.Join(errStorage, err)
	}

	metrics.SchedulerSymbolSuccess.Inc()
	logger.Log.Debug("symbol refreshed",
		zap.String("symbol", symbol),
		zap.Float64("price", quote.Price),
		zap.Int64("volume", quote.Volume))

	// Cache and announce after the durable write. Neither failure
	// affects the run outcome.
	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, quote); err != nil {
			logger.Log.Warn("cache write failed", zap.String("symbol", symbol), zap.Error(err))
		}
		if err := s.cache.PublishQuote(ctx, quote); err != nil {
			logger.Log.Warn("quote publish failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	return nil
}
