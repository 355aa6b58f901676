// Package cache provides the result cache shared by every analytics request.
//
// A Cache never returns an error to its caller. Store failures, timeouts and
// undecodable entries are logged, counted and reported as a miss, so a dead
// backend degrades the service to "always recompute" instead of failing it.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get for absent or expired keys
var ErrNotFound = errors.New("cache: key not found")

// Store is a byte oriented key/value backend with per-key expiry.
// Implementations must be safe for concurrent use and atomic per key.
type Store interface {
	// Name identifies the backend in logs and metrics
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Available reports whether the backend currently answers
	Available(ctx context.Context) bool
	// Sweep removes expired entries and returns how many were dropped.
	// Backends with native expiry return 0.
	Sweep(ctx context.Context) (int, error)
	Close() error
}
