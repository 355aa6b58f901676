package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configures a RedisStore
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Timeout  time.Duration // Dial, read and write timeout
}

// RedisStore keeps entries in redis with native key expiry
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store without contacting the server. An
// unreachable server shows up as failed calls, not as a construction error.
func NewRedisStore(opts RedisOptions) *RedisStore {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	if opts.Prefix == "" {
		opts.Prefix = "pae:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
		MaxRetries:   0,
	})
	return &RedisStore{client: client, prefix: opts.Prefix}
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *RedisStore) Available(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

func (s *RedisStore) Sweep(ctx context.Context) (int, error) { return 0, nil }

func (s *RedisStore) Close() error {
	return s.client.Close()
}
