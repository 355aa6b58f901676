package cache

import (
	"context"
	"time"
)

// NopStore is the disabled cache: every read misses, every write is dropped
type NopStore struct{}

func (NopStore) Name() string { return "none" }

func (NopStore) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }

func (NopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NopStore) Delete(context.Context, string) error { return nil }

func (NopStore) Available(context.Context) bool { return true }

func (NopStore) Sweep(context.Context) (int, error) { return 0, nil }

func (NopStore) Close() error { return nil }
