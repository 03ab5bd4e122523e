package search

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/mkravets/luminio/internal/ai"
	"github.com/mkravets/luminio/internal/database"
	"github.com/mkravets/luminio/internal/models"
)

// QueryCache resolves query text to an embedding vector, hitting the
// store-backed cache before the provider. A user-scoped entry wins over
// a global one for the same text.
type QueryCache struct {
	repo     *database.QueryCacheRepository
	embedder ai.Embedder
	logger   *zap.Logger
}

func NewQueryCache(repo *database.QueryCacheRepository, embedder ai.Embedder, logger *zap.Logger) *QueryCache {
	return &QueryCache{repo: repo, embedder: embedder, logger: logger}
}

// Normalize is the single place query text is canonicalized before
// cache comparison: surrounding whitespace is trimmed, case is kept.
// Case-folding would merge queries the embedding model treats
// differently, so it stays out.
func Normalize(queryText string) string {
	return strings.TrimSpace(queryText)
}

// GetOrCompute returns the embedding for queryText and whether it came
// from the cache. Misses call the provider and persist a user-scoped
// entry starting at usage count 1; hits bump the counter and never
// touch the provider.
func (c *QueryCache) GetOrCompute(ctx context.Context, queryText, userID string) ([]float32, bool, error) {
	normalized := Normalize(queryText)

	entry, err := c.repo.Lookup(ctx, normalized, userID)
	if err == nil {
		if touchErr := c.repo.Touch(ctx, entry.ID); touchErr != nil {
			c.logger.Warn("failed to record cache hit", zap.Error(touchErr))
		}
		return entry.Embedding, true, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, false, err
	}

	vec, err := c.embedder.EmbedText(ctx, normalized)
	if err != nil {
		return nil, false, err
	}

	if insertErr := c.repo.Insert(ctx, &models.QueryCacheEntry{
		QueryText: normalized,
		UserID:    userID,
		Embedding: vec,
		Model:     c.embedder.Model(),
	}); insertErr != nil {
		// A failed cache write must not fail the query.
		c.logger.Warn("failed to persist query embedding", zap.Error(insertErr))
	}

	return vec, false, nil
}
