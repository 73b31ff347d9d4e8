package redisclient

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/elad014/stockwatch/pkg/logger"
	"github.com/elad014/stockwatch/pkg/metrics"
	"github.com/elad014/stockwatch/pkg/models"
)

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrCacheMiss          = errors.New("cache miss")
)

// QuotesChannel is the pub/sub channel quote refreshes are announced on.
const QuotesChannel = "quotes:updates"

// latestTTL bounds staleness of cached quotes. The scheduler rewrites
// the key every refresh cycle, so anything older than two cycles is
// garbage.
const latestTTL = 24 * time.Hour

type Client struct {
	rdb *redis.Client
	// Circuit breaker state
	failureCount int64
	lastFailure  int64
	state        int32 // 0: closed, 1: open, 2: half-open
}

// New constructs a Client with sensible defaults & retry logic
func New(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.New("invalid REDIS_URL: " + err.Error())
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.IdleTimeout = 5 * time.Minute
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// withMetrics wraps operations with metrics collection
func (c *Client) withMetrics(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Seconds()

	metrics.RedisOperationDuration.WithLabelValues(operation, getStatus(err)).Observe(duration)
	if err != nil {
		metrics.RedisErrors.WithLabelValues(operation).Inc()
	}

	return err
}

// getStatus returns "success" or "error" for metrics
func getStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// checkCircuitBreaker checks if circuit breaker should be opened/closed
func (c *Client) checkCircuitBreaker(err error) {
	if err != nil {
		atomic.AddInt64(&c.failureCount, 1)
		atomic.StoreInt64(&c.lastFailure, time.Now().Unix())

		// Open circuit breaker after 5 consecutive failures
		if atomic.LoadInt64(&c.failureCount) >= 5 {
			atomic.CompareAndSwapInt32(&c.state, 0, 1) // closed -> open
			logger.Log.Warn("circuit breaker opened", zap.String("operation", "redis"))
		}
	} else {
		// Reset failure count on success
		atomic.StoreInt64(&c.failureCount, 0)
		atomic.CompareAndSwapInt32(&c.state, 1, 2) // open -> half-open
	}
}

func latestKey(symbol string) string {
	return "quotes:latest:" + symbol
}

// SetLatest caches the freshest quote for a symbol with retry/backoff.
func (c *Client) SetLatest(ctx context.Context, quote models.Quote) error {
	return c.withMetrics("set_latest", func() error {
		if atomic.LoadInt32(&c.state) == 1 {
			return ErrCircuitBreakerOpen
		}

		payload, err := quote.ToJSON()
		if err != nil {
			return err
		}

		op := func() error {
			ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			err := c.rdb.Set(ctx, latestKey(quote.Symbol), payload, latestTTL).Err()
			c.checkCircuitBreaker(err)
			return err
		}
		// exponential backoff: max 3 retries
		return backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3))
	})
}

// GetLatest returns the cached quote for a symbol, or ErrCacheMiss.
func (c *Client) GetLatest(ctx context.Context, symbol string) (models.Quote, error) {
	var quote models.Quote
	err := c.withMetrics("get_latest", func() error {
		raw, err := c.rdb.Get(ctx, latestKey(symbol)).Result()
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		if err != nil {
			c.checkCircuitBreaker(err)
			return err
		}
		quote, err = models.QuoteFromJSON(raw)
		return err
	})
	return quote, err
}

// PublishQuote announces a refreshed quote on the updates channel.
func (c *Client) PublishQuote(ctx context.Context, quote models.Quote) error {
	return c.withMetrics("publish", func() error {
		if atomic.LoadInt32(&c.state) == 1 {
			return ErrCircuitBreakerOpen
		}

		payload, err := quote.ToJSON()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		err = c.rdb.Publish(ctx, QuotesChannel, payload).Err()
		c.checkCircuitBreaker(err)
		return err
	})
}

// Subscribe creates a pub/sub subscription on the updates channel.
func (c *Client) Subscribe(ctx context.Context) *redis.PubSub {
	return c.rdb.Subscribe(ctx, QuotesChannel)
}

// Ping verifies the connection is alive. Used by health endpoints.
func (c *Client) Ping(ctx context.Context) error {
	return c.withMetrics("ping", func() error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return c.rdb.Ping(ctx).Err()
	})
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}
