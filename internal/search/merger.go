package search

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mkravets/luminio/internal/ai"
	"github.com/mkravets/luminio/internal/models"
)

// Request is one unified search call.
type Request struct {
	Query      string
	Mode       models.ResultSource // SourceVector (default) or SourceMetadata
	TopKPhotos int
	TopKVideos int
	// OwnerScope restricts results to one user; empty means admin,
	// all users.
	OwnerScope string
	Album      string
	// UserID keys the query embedding cache; usually equal to
	// OwnerScope but kept separate so admins still get cached vectors.
	UserID string
}

// Merger orchestrates cache lookup, vector search and the metadata
// fallback into one ranked, mixed-media response. Provider failures on
// the query path never reach the caller: they downgrade to metadata
// results with only an internal log entry.
type Merger struct {
	cache     *QueryCache
	engine    *Engine
	fallback  *Fallback
	timeout   time.Duration
	topPhotos int
	topVideos int
	logger    *zap.Logger
}

// MergerConfig bounds a single search call.
type MergerConfig struct {
	Timeout          time.Duration
	DefaultTopPhotos int
	DefaultTopVideos int
}

func NewMerger(cache *QueryCache, engine *Engine, fallback *Fallback, cfg MergerConfig, logger *zap.Logger) *Merger {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DefaultTopPhotos <= 0 {
		cfg.DefaultTopPhotos = 20
	}
	if cfg.DefaultTopVideos <= 0 {
		cfg.DefaultTopVideos = 10
	}
	return &Merger{
		cache:     cache,
		engine:    engine,
		fallback:  fallback,
		timeout:   cfg.Timeout,
		topPhotos: cfg.DefaultTopPhotos,
		topVideos: cfg.DefaultTopVideos,
		logger:    logger,
	}
}

func (m *Merger) Search(ctx context.Context, req Request) (*models.SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if req.TopKPhotos <= 0 {
		req.TopKPhotos = m.topPhotos
	}
	if req.TopKVideos <= 0 {
		req.TopKVideos = m.topVideos
	}

	if req.Mode == models.SourceMetadata {
		// Caller-selected metadata-only mode: skip the embedding path
		// entirely.
		return m.searchMetadata(ctx, req)
	}

	queryVec, cached, err := m.cache.GetOrCompute(ctx, req.Query, req.UserID)
	if err != nil {
		if ai.IsProviderUnavailable(err) || errors.Is(err, context.DeadlineExceeded) {
			m.logger.Warn("embedding path unavailable, falling back to metadata search",
				zap.String("query", req.Query),
				zap.Error(err))
			return m.searchMetadata(ctx, req)
		}
		return nil, err
	}

	photos, segments, err := m.engine.Search(ctx, queryVec, req.TopKPhotos, req.TopKVideos, req.OwnerScope, req.Album)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.logger.Warn("vector search timed out, falling back to metadata search",
				zap.String("query", req.Query))
			return m.searchMetadata(ctx, req)
		}
		return nil, err
	}

	if len(photos) == 0 && len(segments) == 0 {
		m.logger.Debug("vector search empty, trying metadata fallback",
			zap.String("query", req.Query),
			zap.Bool("cached_embedding", cached))
		resp, err := m.searchMetadata(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.Photos) > 0 || len(resp.Segments) > 0 {
			return resp, nil
		}
		// Nothing anywhere: an empty vector-sourced response is still
		// a valid answer.
	}

	return &models.SearchResponse{
		Photos:   orEmptyPhotos(photos),
		Segments: orEmptySegments(segments),
		Source:   models.SourceVector,
	}, nil
}

func (m *Merger) searchMetadata(ctx context.Context, req Request) (*models.SearchResponse, error) {
	// The vector path may have spent the entire request budget before
	// handing over; the fallback gets its own deadline detached from
	// the possibly-expired context so it can still answer.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	photos, segments, err := m.fallback.SearchByText(ctx, req.Query, req.TopKPhotos, req.TopKVideos, req.OwnerScope, req.Album)
	if err != nil {
		return nil, err
	}
	return &models.SearchResponse{
		Photos:   orEmptyPhotos(photos),
		Segments: orEmptySegments(segments),
		Source:   models.SourceMetadata,
	}, nil
}

func orEmptyPhotos(p []models.PhotoResult) []models.PhotoResult {
	if p == nil {
		return []models.PhotoResult{}
	}
	return p
}

func orEmptySegments(s []models.SegmentResult) []models.SegmentResult {
	if s == nil {
		return []models.SegmentResult{}
	}
	return s
}
