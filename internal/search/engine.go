package search

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/mkravets/luminio/internal/database"
	"github.com/mkravets/luminio/internal/models"
)

// Engine ranks stored photo and segment vectors against a query vector
// by cosine similarity. On postgres the ranking runs natively via
// pgvector; otherwise all candidate vectors are fetched (already
// scope/album filtered by the repository) and scored in-process.
type Engine struct {
	segments      *database.SegmentRepository
	minSimilarity float64
	logger        *zap.Logger
}

func NewEngine(segments *database.SegmentRepository, minSimilarity float64, logger *zap.Logger) *Engine {
	return &Engine{segments: segments, minSimilarity: minSimilarity, logger: logger}
}

// Search returns the top-K photos and top-K video segments above the
// similarity threshold, each list ranked by descending similarity with
// ties broken by the most recent creation timestamp.
func (e *Engine) Search(ctx context.Context, queryVec []float32, topKPhotos, topKVideos int, ownerScope, album string) ([]models.PhotoResult, []models.SegmentResult, error) {
	if e.segments.SupportsNativeSearch() {
		photos, err := e.segments.SearchPhotosNative(ctx, queryVec, ownerScope, album, topKPhotos, e.minSimilarity)
		if err != nil {
			return nil, nil, err
		}
		segs, err := e.segments.SearchSegmentsNative(ctx, queryVec, ownerScope, album, topKVideos, e.minSimilarity)
		if err != nil {
			return nil, nil, err
		}
		return photos, segs, nil
	}

	photos, err := e.scanPhotos(ctx, queryVec, topKPhotos, ownerScope, album)
	if err != nil {
		return nil, nil, err
	}
	segs, err := e.scanSegments(ctx, queryVec, topKVideos, ownerScope, album)
	if err != nil {
		return nil, nil, err
	}
	return photos, segs, nil
}

func (e *Engine) scanPhotos(ctx context.Context, queryVec []float32, topK int, ownerScope, album string) ([]models.PhotoResult, error) {
	candidates, err := e.segments.ListPhotoVectors(ctx, ownerScope, album)
	if err != nil {
		return nil, err
	}

	var results []models.PhotoResult
	for _, c := range candidates {
		score, ok := e.score(queryVec, c.Embedding)
		if !ok || score < e.minSimilarity {
			continue
		}
		results = append(results, models.PhotoResult{
			MediaID:     c.MediaID,
			Filename:    c.Filename,
			Album:       c.Album,
			StoragePath: c.StoragePath,
			Tags:        c.Tags,
			Score:       score,
			CreatedAt:   c.CreatedAt,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].MediaID < results[j].MediaID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (e *Engine) scanSegments(ctx context.Context, queryVec []float32, topK int, ownerScope, album string) ([]models.SegmentResult, error) {
	candidates, err := e.segments.ListSegmentVectors(ctx, ownerScope, album)
	if err != nil {
		return nil, err
	}

	var results []models.SegmentResult
	for _, c := range candidates {
		score, ok := e.score(queryVec, c.Embedding)
		if !ok || score < e.minSimilarity {
			continue
		}
		results = append(results, models.SegmentResult{
			MediaID:   c.MediaID,
			SegmentID: c.SegmentID,
			Filename:  c.Filename,
			Title:     c.Title,
			Album:     c.Album,
			StartTime: c.StartTime,
			EndTime:   c.EndTime,
			Score:     score,
			CreatedAt: c.CreatedAt,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].SegmentID < results[j].SegmentID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// score computes cosine similarity. Vectors of different length (a
// model upgrade changed dimensions) are truncated to the shorter one
// and scored anyway: staying searchable across upgrades beats failing.
func (e *Engine) score(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}
	if len(a) != len(b) {
		e.logger.Warn("vector dimension mismatch, truncating",
			zap.Int("query_dim", len(a)),
			zap.Int("stored_dim", len(b)))
		n := len(a)
		if len(b) < n {
			n = len(b)
		}
		a, b = a[:n], b[:n]
	}
	return CosineSimilarity(a, b), true
}

// CosineSimilarity returns the cosine of the angle between two equal
// length vectors, in [-1, 1]. Zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
