// SPDX-License-Identifier: Apache-2.0

// Package resultcache memoizes cmd/measure's printed report lines in Redis,
// keyed on the full set of parameters a benchmark run was invoked with. It
// is a convenience for repeated local benchmarking runs, not a
// serialization format for a live sketch — nothing here round-trips
// register state, only a report already reduced to five lines of text.
package resultcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when no cached report exists for key.
var ErrMiss = errors.New("resultcache: no cached report for key")

// Key identifies one cmd/measure invocation's parameters.
type Key struct {
	Mode     string
	Algo     string
	DataType string
	M        uint
	N        uint64
	Flags    string
	Len      uint
}

func (k Key) redisKey() string {
	return fmt.Sprintf("hyperlogloglog:measure:%s:%s:%s:%d:%d:%s:%d",
		k.Mode, k.Algo, k.DataType, k.M, k.N, k.Flags, k.Len)
}

// Cache is a thin wrapper around a Redis client storing report text by Key.
type Cache struct {
	client *redis.Client
}

// New connects to the Redis instance at addr. No connection is actually
// made until the first Get or Set, matching go-redis's lazy-dial client.
func New(addr string) *Cache {
	return &Cache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Get returns the previously cached report for key, or ErrMiss if absent.
func (c *Cache) Get(ctx context.Context, key Key) (string, error) {
	report, err := c.client.Get(ctx, key.redisKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", err
	}
	return report, nil
}

// Set stores report under key, replacing any existing entry.
func (c *Cache) Set(ctx context.Context, key Key, report string) error {
	return c.client.Set(ctx, key.redisKey(), report, 0).Err()
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
