/**
 * Storage Manager for ScaleOCR Worker
 *
 * Coordinates PostgreSQL (source of truth) and the Redis result cache.
 * Cache failures never fail a request; they are logged and skipped.
 */

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/adverant/nexus/scaleocr-worker/internal/logging"
)

// StorageManager coordinates PostgreSQL and Redis operations
type StorageManager struct {
	postgres *PostgresClient
	cache    *ResultCache
	logger   *logging.Logger
}

// NewStorageManager connects to PostgreSQL and attaches the cache
func NewStorageManager(postgresURL string, cache *ResultCache, logger *logging.Logger) (*StorageManager, error) {
	postgres, err := NewPostgresClient(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}
	return NewStorageManagerWithClients(postgres, cache, logger), nil
}

// NewStorageManagerWithClients assembles a manager from existing clients
func NewStorageManagerWithClients(postgres *PostgresClient, cache *ResultCache, logger *logging.Logger) *StorageManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &StorageManager{
		postgres: postgres,
		cache:    cache,
		logger:   logger,
	}
}

// LookupReading finds a previous reading for the same image. The cache is
// consulted first; a database hit repopulates it.
func (sm *StorageManager) LookupReading(ctx context.Context, fingerprint string) (*Reading, error) {
	r, err := sm.cache.Get(ctx, fingerprint)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrReadingNotFound) {
		sm.logger.Warn("Result cache read failed", "fingerprint", fingerprint, "error", err)
	}

	r, err = sm.postgres.GetReadingByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}

	if err := sm.cache.Set(ctx, r); err != nil {
		sm.logger.Warn("Result cache write failed", "fingerprint", fingerprint, "error", err)
	}
	return r, nil
}

// SaveReading persists a reading then caches it
func (sm *StorageManager) SaveReading(ctx context.Context, r *Reading) (*Reading, error) {
	saved, err := sm.postgres.SaveReading(ctx, r)
	if err != nil {
		return nil, err
	}

	if err := sm.cache.Set(ctx, saved); err != nil {
		sm.logger.Warn("Result cache write failed",
			"reading_id", saved.ID,
			"fingerprint", saved.Fingerprint,
			"error", err)
	}
	return saved, nil
}

// GetReading retrieves a reading by ID
func (sm *StorageManager) GetReading(ctx context.Context, id string) (*Reading, error) {
	return sm.postgres.GetReading(ctx, id)
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// GetStats returns connection pool statistics
func (sm *StorageManager) GetStats() map[string]interface{} {
	pgStats := sm.postgres.GetStats()

	return map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
		"cache_enabled": sm.cache.Enabled(),
	}
}

// Close closes the database connection. The Redis client is owned by the caller.
func (sm *StorageManager) Close() error {
	if sm.postgres != nil {
		if err := sm.postgres.Close(); err != nil {
			return fmt.Errorf("failed to close PostgreSQL: %w", err)
		}
	}
	return nil
}
