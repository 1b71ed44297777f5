/**
 * Result Cache - accepted readings keyed by image fingerprint
 */

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrReadingNotFound is returned when no reading exists for a key
var ErrReadingNotFound = errors.New("reading not found")

const cacheKeyPrefix = "scaleocr:reading:"

// ResultCache stores readings in Redis under their image fingerprint
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache creates a cache. A zero ttl disables caching.
func NewResultCache(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

// Enabled reports whether the cache stores anything
func (c *ResultCache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func cacheKey(fingerprint string) string {
	return cacheKeyPrefix + fingerprint
}

// Get returns the cached reading or ErrReadingNotFound
func (c *ResultCache) Get(ctx context.Context, fingerprint string) (*Reading, error) {
	if !c.Enabled() {
		return nil, ErrReadingNotFound
	}

	data, err := c.client.Get(ctx, cacheKey(fingerprint)).Bytes()
	if err == redis.Nil {
		return nil, ErrReadingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	var r Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode cached reading: %w", err)
	}
	return &r, nil
}

// Set stores a reading under its fingerprint
func (c *ResultCache) Set(ctx context.Context, r *Reading) error {
	if !c.Enabled() {
		return nil
	}
	if r == nil || r.Fingerprint == "" {
		return fmt.Errorf("reading with fingerprint is required")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(r.Fingerprint), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}
