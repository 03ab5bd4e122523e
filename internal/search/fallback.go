package search

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/mkravets/luminio/internal/database"
	"github.com/mkravets/luminio/internal/models"
)

const (
	photoFilenameWeight = 0.5
	photoTagWeight      = 0.3

	videoFilenameWeight = 0.4
	videoTitleWeight    = 0.4
	videoTagWeight      = 0.2
)

// Fallback scores media by keyword overlap against filenames, titles
// and tags. It answers when the vector path is unavailable or empty,
// and it is also directly selectable as a metadata-only search mode.
type Fallback struct {
	media *database.MediaRepository
}

func NewFallback(media *database.MediaRepository) *Fallback {
	return &Fallback{media: media}
}

// SearchByText ranks photos and videos for queryText. Matching is
// substring containment of lowercase whitespace-split keywords, not
// tokenized equality, so "sunset" matches "sunset_beach_2024.jpg".
func (f *Fallback) SearchByText(ctx context.Context, queryText string, topKPhotos, topKVideos int, ownerScope, album string) ([]models.PhotoResult, []models.SegmentResult, error) {
	keywords := extractKeywords(queryText)
	if len(keywords) == 0 {
		return nil, nil, nil
	}

	photos, err := f.searchPhotos(ctx, keywords, topKPhotos, ownerScope, album)
	if err != nil {
		return nil, nil, err
	}
	videos, err := f.searchVideos(ctx, keywords, topKVideos, ownerScope, album)
	if err != nil {
		return nil, nil, err
	}
	return photos, videos, nil
}

func (f *Fallback) searchPhotos(ctx context.Context, keywords []string, topK int, ownerScope, album string) ([]models.PhotoResult, error) {
	items, err := f.media.ListByKind(ctx, models.KindPhoto, ownerScope, album)
	if err != nil {
		return nil, err
	}

	var results []models.PhotoResult
	for _, item := range items {
		filename := strings.ToLower(item.Filename)
		score := 0.0
		for _, kw := range keywords {
			if strings.Contains(filename, kw) {
				score += photoFilenameWeight
			}
			if tagsContain(item.Tags, kw) {
				score += photoTagWeight
			}
		}
		if score == 0 {
			continue
		}
		results = append(results, models.PhotoResult{
			MediaID:     item.ID,
			Filename:    item.Filename,
			Album:       item.Album,
			StoragePath: item.StoragePath,
			Tags:        item.Tags,
			Score:       math.Min(score, 1.0),
			CreatedAt:   item.CreatedAt,
		})
	}

	sortPhotoResults(results)
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (f *Fallback) searchVideos(ctx context.Context, keywords []string, topK int, ownerScope, album string) ([]models.SegmentResult, error) {
	items, err := f.media.ListByKind(ctx, models.KindVideo, ownerScope, album)
	if err != nil {
		return nil, err
	}

	var results []models.SegmentResult
	for _, item := range items {
		filename := strings.ToLower(item.Filename)
		title := strings.ToLower(item.Title)
		score := 0.0
		for _, kw := range keywords {
			if strings.Contains(filename, kw) {
				score += videoFilenameWeight
			}
			if title != "" && strings.Contains(title, kw) {
				score += videoTitleWeight
			}
			if tagsContain(item.Tags, kw) {
				score += videoTagWeight
			}
		}
		if score == 0 {
			continue
		}
		// A metadata match has no segment granularity; the hit spans
		// the whole video.
		results = append(results, models.SegmentResult{
			MediaID:   item.ID,
			Filename:  item.Filename,
			Title:     item.Title,
			Album:     item.Album,
			StartTime: 0,
			EndTime:   item.Duration,
			Score:     math.Min(score, 1.0),
			CreatedAt: item.CreatedAt,
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

func sortPhotoResults(results []models.PhotoResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].MediaID < results[j].MediaID
	})
}

// extractKeywords lowercases and splits on whitespace, dropping
// duplicates while keeping first-seen order.
func extractKeywords(queryText string) []string {
	fields := strings.Fields(strings.ToLower(queryText))
	seen := make(map[string]bool, len(fields))
	var keywords []string
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		keywords = append(keywords, f)
	}
	return keywords
}

func tagsContain(tags []string, keyword string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), keyword) {
			return true
		}
	}
	return false
}
