package models

import (
	"time"

	"github.com/google/uuid"
)

type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
)

// IndexStatus tracks the embedding lifecycle of a media item. The
// pending->indexing transition doubles as the ingestion claim: a worker
// only processes an item it managed to flip from pending to indexing.
type IndexStatus string

const (
	StatusPending  IndexStatus = "pending"
	StatusIndexing IndexStatus = "indexing"
	StatusReady    IndexStatus = "ready"
	StatusFailed   IndexStatus = "failed"
)

// MediaItem is an uploaded photo or original video.
type MediaItem struct {
	ID          string
	OwnerID     string
	Album       string
	Filename    string
	Title       string
	Kind        MediaKind
	Duration    float64 // seconds, videos only
	ContentType string
	Size        int64
	StoragePath string
	Tags        []string
	IndexStatus IndexStatus
	IndexError  string
	CreatedAt   time.Time
}

func NewMediaItem(ownerID, album, filename, title string, kind MediaKind, contentType string, size int64) *MediaItem {
	return &MediaItem{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Album:       album,
		Filename:    filename,
		Title:       title,
		Kind:        kind,
		ContentType: contentType,
		Size:        size,
		IndexStatus: StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// VideoChunk is a physically extracted slice of a video whose duration
// exceeds the embedding provider's limit. Chunks for one video are
// contiguous with a deliberate overlap and their union covers the whole
// original timeline.
type VideoChunk struct {
	ID          string
	MediaID     string
	ChunkIndex  int
	ChunkCount  int
	StartOffset float64 // seconds in the original video
	EndOffset   float64
	StoragePath string
}

func NewVideoChunk(mediaID string, index, count int, start, end float64) *VideoChunk {
	return &VideoChunk{
		ID:          uuid.New().String(),
		MediaID:     mediaID,
		ChunkIndex:  index,
		ChunkCount:  count,
		StartOffset: start,
		EndOffset:   end,
	}
}

// VideoSegment is the unit that carries one embedding vector. For short
// videos a single segment spans the whole file; for chunked videos the
// provider may return several timed sub-segments per chunk. StartTime
// and EndTime are always on the original video's timeline.
type VideoSegment struct {
	ID           string
	MediaID      string
	ChunkID      string // empty when no chunking occurred
	SegmentIndex int
	StartTime    float64
	EndTime      float64
	Embedding    []float32
	Model        string
	CreatedAt    time.Time
}

// PhotoVector is the single embedding vector of a photo.
type PhotoVector struct {
	ID        string
	MediaID   string
	Embedding []float32
	Model     string
	CreatedAt time.Time
}

// QueryCacheEntry caches a computed query embedding. UserID is empty
// for globally shared entries; a user-scoped and a global entry may
// coexist for the same text, with the user-scoped one winning lookups.
type QueryCacheEntry struct {
	ID         string
	QueryText  string
	UserID     string
	Embedding  []float32
	Model      string
	UsageCount int
	LastUsedAt time.Time
	CreatedAt  time.Time
}
