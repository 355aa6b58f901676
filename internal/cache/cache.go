package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Envelope schemas, one per cached result type
const (
	SchemaAnalytics    = "analytics/v1"
	SchemaOptimization = "optimization/v1"
	SchemaFrontier     = "frontier/v1"
	SchemaBacktest     = "backtest/v1"
	SchemaPrices       = "prices/v1"
)

var errExpired = errors.New("cache: entry expired")

// Options tunes the failure handling around a Store
type Options struct {
	Name             string        // Breaker and gauge label, defaults to the backend name
	Timeout          time.Duration // Per call deadline
	FailureThreshold uint32        // Consecutive failures that open the breaker
	OpenTimeout      time.Duration // How long the breaker stays open before probing
}

// Cache wraps a Store with a per-call deadline, a circuit breaker and the
// versioned envelope. None of its methods return errors.
type Cache struct {
	store   Store
	name    string
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// New creates a cache over store
func New(store Store, opts Options, log zerolog.Logger) *Cache {
	if opts.Name == "" {
		opts.Name = store.Name()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 250 * time.Millisecond
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}

	c := &Cache{
		store:   store,
		name:    opts.Name,
		timeout: opts.Timeout,
		log: log.With().
			Str("component", "cache").
			Str("cache", opts.Name).
			Str("backend", store.Name()).
			Logger(),
		now: time.Now,
	}

	threshold := opts.FailureThreshold
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(stateValue(to))
			if to == gobreaker.StateOpen {
				c.log.Warn().Str("from", from.String()).Msg("Cache degraded, bypassing store")
			} else {
				c.log.Info().Str("from", from.String()).Str("to", to.String()).Msg("Cache breaker state changed")
			}
		},
	})
	breakerState.WithLabelValues(opts.Name).Set(0)

	return c
}

// Backend names the underlying store
func (c *Cache) Backend() string {
	return c.store.Name()
}

// Degraded reports whether the breaker is currently bypassing the store
func (c *Cache) Degraded() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

// Available pings the store under the cache deadline
func (c *Cache) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.store.Available(ctx)
}

// Get loads key into dest. It reports false on a miss, an expired or
// foreign entry, or any store failure.
func (c *Cache) Get(ctx context.Context, schema, key string, dest interface{}) bool {
	data, err := c.call(ctx, func(ctx context.Context) ([]byte, error) {
		return c.store.Get(ctx, key)
	})
	switch {
	case errors.Is(err, ErrNotFound):
		c.record("get", outcomeMiss)
		c.log.Debug().Str("key", key).Msg("Cache miss")
		return false
	case err != nil:
		c.fail("get", key, err)
		return false
	}

	if err := decodeEntry(data, schema, key, c.now(), dest); err != nil {
		if errors.Is(err, errExpired) {
			c.record("get", outcomeMiss)
			c.log.Debug().Str("key", key).Msg("Cache entry expired")
		} else {
			c.record("get", outcomeInvalid)
			c.log.Warn().Err(err).Str("key", key).Msg("Discarding unreadable cache entry")
		}
		return false
	}

	c.record("get", outcomeHit)
	return true
}

// Set stores value under key for ttl. Failures are logged and dropped.
func (c *Cache) Set(ctx context.Context, schema, key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := encodeEntry(schema, key, value, c.now(), ttl)
	if err != nil {
		c.record("set", outcomeInvalid)
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to encode cache entry")
		return
	}

	_, err = c.call(ctx, func(ctx context.Context) ([]byte, error) {
		return nil, c.store.Set(ctx, key, data, ttl)
	})
	if err != nil {
		c.fail("set", key, err)
		return
	}
	c.record("set", outcomeOK)
}

// Invalidate removes key. Failures are logged and dropped.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	_, err := c.call(ctx, func(ctx context.Context) ([]byte, error) {
		return nil, c.store.Delete(ctx, key)
	})
	if err != nil {
		c.fail("delete", key, err)
		return
	}
	c.record("delete", outcomeOK)
}

// Sweep drops expired entries from stores without native expiry
func (c *Cache) Sweep(ctx context.Context) int {
	removed, err := c.store.Sweep(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Cache sweep failed")
		return 0
	}
	if removed > 0 {
		sweptTotal.WithLabelValues(c.store.Name()).Add(float64(removed))
		c.log.Debug().Int("removed", removed).Msg("Swept expired cache entries")
	}
	return removed
}

// Close releases the store
func (c *Cache) Close() error {
	return c.store.Close()
}

// storeResult carries a store call's outcome out of its goroutine
type storeResult struct {
	data []byte
	err  error
}

// call runs fn through the breaker under the cache deadline. Stores that
// ignore ctx (badger) are abandoned at the deadline; their late result is
// dropped.
func (c *Cache) call(ctx context.Context, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		done := make(chan storeResult, 1)
		go func() {
			data, err := fn(ctx)
			done <- storeResult{data: data, err: err}
		}()

		select {
		case r := <-done:
			return r.data, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if err != nil {
		return nil, err
	}
	data, _ := res.([]byte)
	return data, nil
}

func (c *Cache) fail(op, key string, err error) {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.record(op, outcomeDegraded)
		c.log.Debug().Str("op", op).Str("key", key).Msg("Cache degraded, skipping store")
		return
	}
	c.record(op, outcomeError)
	c.log.Warn().Err(err).Str("op", op).Str("key", key).Msg("Cache store call failed")
}

func (c *Cache) record(op, outcome string) {
	operationsTotal.WithLabelValues(c.store.Name(), op, outcome).Inc()
}

// Typed is a Cache view bound to one result type and schema
type Typed[T any] struct {
	cache  *Cache
	schema string
	ttl    time.Duration
}

// NewTyped binds c to values of type T stored under schema
func NewTyped[T any](c *Cache, schema string, ttl time.Duration) *Typed[T] {
	return &Typed[T]{cache: c, schema: schema, ttl: ttl}
}

// Get returns the cached value, or false when absent
func (t *Typed[T]) Get(ctx context.Context, key string) (*T, bool) {
	var v T
	if !t.cache.Get(ctx, t.schema, key, &v) {
		return nil, false
	}
	return &v, true
}

// Set stores v for ttl, or for the default TTL when ttl is zero
func (t *Typed[T]) Set(ctx context.Context, key string, v *T, ttl time.Duration) {
	if v == nil {
		return
	}
	if ttl == 0 {
		ttl = t.ttl
	}
	t.cache.Set(ctx, t.schema, key, v, ttl)
}

// Invalidate removes key
func (t *Typed[T]) Invalidate(ctx context.Context, key string) {
	t.cache.Invalidate(ctx, key)
}

// TTL is the default lifetime of entries
func (t *Typed[T]) TTL() time.Duration {
	return t.ttl
}
