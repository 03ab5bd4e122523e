package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/mkravets/luminio/internal/models"
)

// SegmentRepository persists video chunks, segment vectors and photo
// vectors. Upserts are idempotent on their natural keys so re-running
// an embedding pass replaces vectors instead of duplicating rows.
type SegmentRepository struct {
	db *DB
}

func NewSegmentRepository(db *DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

func (r *SegmentRepository) InsertChunk(ctx context.Context, chunk *models.VideoChunk) error {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO video_chunks (id, media_id, chunk_index, chunk_count, start_offset, end_offset, storage_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		chunk.ID, chunk.MediaID, chunk.ChunkIndex, chunk.ChunkCount,
		chunk.StartOffset, chunk.EndOffset, chunk.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func (r *SegmentRepository) ListChunks(ctx context.Context, mediaID string) ([]models.VideoChunk, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, media_id, chunk_index, chunk_count, start_offset, end_offset, storage_path
		FROM video_chunks WHERE media_id = $1 ORDER BY chunk_index ASC`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.VideoChunk
	for rows.Next() {
		var c models.VideoChunk
		if err := rows.Scan(&c.ID, &c.MediaID, &c.ChunkIndex, &c.ChunkCount,
			&c.StartOffset, &c.EndOffset, &c.StoragePath); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *SegmentRepository) DeleteChunks(ctx context.Context, mediaID string) error {
	_, err := r.db.conn.ExecContext(ctx, `DELETE FROM video_chunks WHERE media_id = $1`, mediaID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// DeleteSegments removes every segment vector for a video. Segments are
// keyed by chunk id, so dropping chunk rows alone leaves them behind.
func (r *SegmentRepository) DeleteSegments(ctx context.Context, mediaID string) error {
	_, err := r.db.conn.ExecContext(ctx, `DELETE FROM video_segments WHERE media_id = $1`, mediaID)
	if err != nil {
		return fmt.Errorf("failed to delete segments: %w", err)
	}
	return nil
}

// UpsertSegment writes a segment vector keyed on
// (media_id, chunk_id, segment_index). StartTime and EndTime must
// already be on the original video's timeline.
func (r *SegmentRepository) UpsertSegment(ctx context.Context, seg *models.VideoSegment) error {
	if seg.ID == "" {
		seg.ID = uuid.New().String()
	}
	if seg.CreatedAt.IsZero() {
		seg.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO video_segments (id, media_id, chunk_id, segment_index, start_time, end_time, embedding, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (media_id, chunk_id, segment_index)
		DO UPDATE SET
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model`,
		seg.ID, seg.MediaID, seg.ChunkID, seg.SegmentIndex,
		seg.StartTime, seg.EndTime, r.db.vectorValue(seg.Embedding), seg.Model, seg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert segment: %w", err)
	}
	return nil
}

// UpsertPhotoVector writes the single vector of a photo, replacing any
// previous one for the same media item.
func (r *SegmentRepository) UpsertPhotoVector(ctx context.Context, pv *models.PhotoVector) error {
	if pv.ID == "" {
		pv.ID = uuid.New().String()
	}
	if pv.CreatedAt.IsZero() {
		pv.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO photo_vectors (id, media_id, embedding, model, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (media_id)
		DO UPDATE SET embedding = EXCLUDED.embedding, model = EXCLUDED.model`,
		pv.ID, pv.MediaID, r.db.vectorValue(pv.Embedding), pv.Model, pv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert photo vector: %w", err)
	}
	return nil
}

func (r *SegmentRepository) CountSegments(ctx context.Context, mediaID, chunkID string, segmentIndex int) (int, error) {
	var count int
	err := r.db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM video_segments
		WHERE media_id = $1 AND chunk_id = $2 AND segment_index = $3`,
		mediaID, chunkID, segmentIndex).Scan(&count)
	return count, err
}

// SegmentCandidate is one stored segment vector with the metadata the
// search engine ranks and shapes results with.
type SegmentCandidate struct {
	SegmentID string
	MediaID   string
	Filename  string
	Title     string
	Album     string
	StartTime float64
	EndTime   float64
	Embedding []float32
	CreatedAt time.Time
}

// PhotoCandidate is one stored photo vector plus result metadata.
type PhotoCandidate struct {
	MediaID     string
	Filename    string
	Album       string
	StoragePath string
	Tags        []string
	Embedding   []float32
	CreatedAt   time.Time
}

// ListSegmentVectors streams all segment vectors visible to ownerScope
// (empty scope = admin, all owners), optionally restricted to one
// album. Filtering happens here so the scan-and-score engine never
// fetches rows it will discard.
func (r *SegmentRepository) ListSegmentVectors(ctx context.Context, ownerScope, album string) ([]SegmentCandidate, error) {
	query := `
		SELECT s.id, s.media_id, m.filename, m.title, m.album, s.start_time, s.end_time, s.embedding, s.created_at
		FROM video_segments s
		JOIN media_items m ON m.id = s.media_id
		WHERE 1=1`
	var args []any
	if ownerScope != "" {
		args = append(args, ownerScope)
		query += fmt.Sprintf(" AND m.owner_id = $%d", len(args))
	}
	if album != "" {
		args = append(args, album)
		query += fmt.Sprintf(" AND m.album = $%d", len(args))
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list segment vectors: %w", err)
	}
	defer rows.Close()

	var candidates []SegmentCandidate
	for rows.Next() {
		var c SegmentCandidate
		target := r.db.vectorScanner()
		if err := rows.Scan(&c.SegmentID, &c.MediaID, &c.Filename, &c.Title, &c.Album,
			&c.StartTime, &c.EndTime, target.Dest(), &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Embedding = target.Vector()
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ListPhotoVectors is the photo counterpart of ListSegmentVectors.
func (r *SegmentRepository) ListPhotoVectors(ctx context.Context, ownerScope, album string) ([]PhotoCandidate, error) {
	query := `
		SELECT p.media_id, m.filename, m.album, m.storage_path, m.tags, p.embedding, p.created_at
		FROM photo_vectors p
		JOIN media_items m ON m.id = p.media_id
		WHERE 1=1`
	var args []any
	if ownerScope != "" {
		args = append(args, ownerScope)
		query += fmt.Sprintf(" AND m.owner_id = $%d", len(args))
	}
	if album != "" {
		args = append(args, album)
		query += fmt.Sprintf(" AND m.album = $%d", len(args))
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list photo vectors: %w", err)
	}
	defer rows.Close()

	var candidates []PhotoCandidate
	for rows.Next() {
		var c PhotoCandidate
		var tags string
		target := r.db.vectorScanner()
		if err := rows.Scan(&c.MediaID, &c.Filename, &c.Album, &c.StoragePath,
			&tags, target.Dest(), &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Embedding = target.Vector()
		if tags != "" && tags != "[]" {
			if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
				return nil, fmt.Errorf("decode tags: %w", err)
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// SupportsNativeSearch reports whether the backing store can rank by
// cosine distance itself (pgvector). When false the engine fetches all
// candidates and scores in-process.
func (r *SegmentRepository) SupportsNativeSearch() bool {
	return r.db.dbType == "postgres"
}

// SearchSegmentsNative ranks segments by cosine similarity inside
// postgres. Ties on similarity break toward the newest segment.
func (r *SegmentRepository) SearchSegmentsNative(ctx context.Context, vec []float32, ownerScope, album string, limit int, minSimilarity float64) ([]models.SegmentResult, error) {
	query := `
		SELECT s.id, s.media_id, m.filename, m.title, m.album, s.start_time, s.end_time,
		       1 - (s.embedding <=> $1) AS similarity, s.created_at
		FROM video_segments s
		JOIN media_items m ON m.id = s.media_id
		WHERE 1=1`
	args := []any{pgvector.NewVector(vec)}
	if ownerScope != "" {
		args = append(args, ownerScope)
		query += fmt.Sprintf(" AND m.owner_id = $%d", len(args))
	}
	if album != "" {
		args = append(args, album)
		query += fmt.Sprintf(" AND m.album = $%d", len(args))
	}
	args = append(args, minSimilarity)
	query += fmt.Sprintf(" AND 1 - (s.embedding <=> $1) >= $%d", len(args))
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY similarity DESC, s.created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("native segment search failed: %w", err)
	}
	defer rows.Close()

	var results []models.SegmentResult
	for rows.Next() {
		var res models.SegmentResult
		if err := rows.Scan(&res.SegmentID, &res.MediaID, &res.Filename, &res.Title, &res.Album,
			&res.StartTime, &res.EndTime, &res.Score, &res.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// SearchPhotosNative is the photo counterpart of SearchSegmentsNative.
func (r *SegmentRepository) SearchPhotosNative(ctx context.Context, vec []float32, ownerScope, album string, limit int, minSimilarity float64) ([]models.PhotoResult, error) {
	query := `
		SELECT p.media_id, m.filename, m.album, m.storage_path, m.tags,
		       1 - (p.embedding <=> $1) AS similarity, p.created_at
		FROM photo_vectors p
		JOIN media_items m ON m.id = p.media_id
		WHERE 1=1`
	args := []any{pgvector.NewVector(vec)}
	if ownerScope != "" {
		args = append(args, ownerScope)
		query += fmt.Sprintf(" AND m.owner_id = $%d", len(args))
	}
	if album != "" {
		args = append(args, album)
		query += fmt.Sprintf(" AND m.album = $%d", len(args))
	}
	args = append(args, minSimilarity)
	query += fmt.Sprintf(" AND 1 - (p.embedding <=> $1) >= $%d", len(args))
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY similarity DESC, p.created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("native photo search failed: %w", err)
	}
	defer rows.Close()

	var results []models.PhotoResult
	for rows.Next() {
		var res models.PhotoResult
		var tags string
		if err := rows.Scan(&res.MediaID, &res.Filename, &res.Album, &res.StoragePath,
			&tags, &res.Score, &res.CreatedAt); err != nil {
			return nil, err
		}
		if tags != "" && tags != "[]" {
			if err := json.Unmarshal([]byte(tags), &res.Tags); err != nil {
				return nil, fmt.Errorf("decode tags: %w", err)
			}
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
