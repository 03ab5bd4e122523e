package models

import "time"

// ResultSource records which search path produced a result list so
// callers can reason about confidence.
type ResultSource string

const (
	SourceVector   ResultSource = "vector"
	SourceMetadata ResultSource = "metadata"
)

// PhotoResult is one scored photo hit.
type PhotoResult struct {
	MediaID     string    `json:"media_id"`
	Filename    string    `json:"filename"`
	Album       string    `json:"album"`
	StoragePath string    `json:"storage_path"`
	Tags        []string  `json:"tags,omitempty"`
	Score       float64   `json:"score"`
	CreatedAt   time.Time `json:"created_at"`
}

// SegmentResult is one scored video segment hit, timed on the original
// video's timeline.
type SegmentResult struct {
	MediaID   string    `json:"media_id"`
	SegmentID string    `json:"segment_id,omitempty"`
	Filename  string    `json:"filename"`
	Title     string    `json:"title,omitempty"`
	Album     string    `json:"album"`
	StartTime float64   `json:"start_time"`
	EndTime   float64   `json:"end_time"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchResponse carries both ranked lists plus the path that produced
// them. Photos and segments are kept as separate lists on purpose:
// vector similarity and keyword scores are not comparable, so no
// blended ranking is attempted.
type SearchResponse struct {
	Photos   []PhotoResult   `json:"photos"`
	Segments []SegmentResult `json:"segments"`
	Source   ResultSource    `json:"source"`
}
