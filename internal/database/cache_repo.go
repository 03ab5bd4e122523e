package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkravets/luminio/internal/models"
)

// QueryCacheRepository backs the query embedding cache. Lookup order is
// user-scoped entry first, then the global (empty user) entry.
type QueryCacheRepository struct {
	db *DB
}

func NewQueryCacheRepository(db *DB) *QueryCacheRepository {
	return &QueryCacheRepository{db: db}
}

// Lookup returns the best entry for (queryText, userID): the
// user-scoped row when present, otherwise the global row, otherwise
// ErrNotFound.
func (r *QueryCacheRepository) Lookup(ctx context.Context, queryText, userID string) (*models.QueryCacheEntry, error) {
	if userID != "" {
		entry, err := r.lookupExact(ctx, queryText, userID)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return r.lookupExact(ctx, queryText, "")
}

func (r *QueryCacheRepository) lookupExact(ctx context.Context, queryText, userID string) (*models.QueryCacheEntry, error) {
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT id, query_text, user_id, embedding, model, usage_count, last_used_at, created_at
		FROM query_cache WHERE query_text = $1 AND user_id = $2`,
		queryText, userID)

	var entry models.QueryCacheEntry
	target := r.db.vectorScanner()
	err := row.Scan(&entry.ID, &entry.QueryText, &entry.UserID, target.Dest(),
		&entry.Model, &entry.UsageCount, &entry.LastUsedAt, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up query cache: %w", err)
	}
	entry.Embedding = target.Vector()
	return &entry, nil
}

// Touch records a hit: usage count up by one, last-used refreshed.
func (r *QueryCacheRepository) Touch(ctx context.Context, id string) error {
	_, err := r.db.conn.ExecContext(ctx, `
		UPDATE query_cache SET usage_count = usage_count + 1, last_used_at = $1 WHERE id = $2`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}
	return nil
}

// Insert stores a freshly computed embedding. A fresh row starts at
// usage_count 1. Races between concurrent misses resolve via the
// uniqueness key: the loser's row simply replaces the same vector.
func (r *QueryCacheRepository) Insert(ctx context.Context, entry *models.QueryCacheEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.LastUsedAt.IsZero() {
		entry.LastUsedAt = now
	}
	if entry.UsageCount == 0 {
		entry.UsageCount = 1
	}

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO query_cache (id, query_text, user_id, embedding, model, usage_count, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (query_text, user_id)
		DO UPDATE SET embedding = EXCLUDED.embedding, model = EXCLUDED.model, last_used_at = EXCLUDED.last_used_at`,
		entry.ID, entry.QueryText, entry.UserID, r.db.vectorValue(entry.Embedding),
		entry.Model, entry.UsageCount, entry.LastUsedAt, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// EvictStale trims the cache to the keep most recently used entries.
// The cache would otherwise grow without bound since hits never expire
// rows on their own.
func (r *QueryCacheRepository) EvictStale(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := r.db.conn.ExecContext(ctx, `
		DELETE FROM query_cache WHERE id NOT IN (
			SELECT id FROM query_cache ORDER BY last_used_at DESC LIMIT $1
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to evict cache entries: %w", err)
	}
	return res.RowsAffected()
}

func (r *QueryCacheRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_cache`).Scan(&count)
	return count, err
}
