// Package redis implements the resolution cache on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/pinfetch/internal/cache"
	"github.com/JakeFAU/pinfetch/internal/media"
)

// Store implements media.Cache with GET and a SET/EXPIRE transaction.
type Store struct {
	client goredis.UniversalClient
}

var _ media.Cache = (*Store)(nil)

// New wraps an existing client.
func New(client goredis.UniversalClient) *Store {
	return &Store{client: client}
}

// NewFromURL dials Redis from a redis:// URL.
func NewFromURL(url string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(goredis.NewClient(opts)), nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get returns the cached descriptor. Expired keys are gone from Redis, so they
// read as a miss.
func (s *Store) Get(ctx context.Context, key media.SourceURL) (media.Descriptor, bool, error) {
	raw, err := s.client.Get(ctx, string(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return media.Descriptor{}, false, nil
	}
	if err != nil {
		return media.Descriptor{}, false, fmt.Errorf("redis get: %w", err)
	}
	d, err := cache.Decode(raw)
	if err != nil {
		return media.Descriptor{}, false, err
	}
	return d, true, nil
}

// Put overwrites the entry and sets its expiry in one MULTI/EXEC.
func (s *Store) Put(ctx context.Context, key media.SourceURL, d media.Descriptor, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("redis put: ttl must be > 0")
	}
	value, err := cache.Encode(d)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, string(key), value, 0)
		pipe.Expire(ctx, string(key), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}
