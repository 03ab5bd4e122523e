package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mkravets/luminio/internal/models"
)

var ErrNotFound = errors.New("not found")

type MediaRepository struct {
	db *DB
}

func NewMediaRepository(db *DB) *MediaRepository {
	return &MediaRepository{db: db}
}

const mediaColumns = `id, owner_id, album, filename, title, kind, duration, content_type, size, storage_path, tags, index_status, index_error, created_at`

func (r *MediaRepository) Insert(ctx context.Context, item *models.MediaItem) error {
	tags, err := json.Marshal(item.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	if item.Tags == nil {
		tags = []byte("[]")
	}

	_, err = r.db.conn.ExecContext(ctx, `
		INSERT INTO media_items (`+mediaColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		item.ID, item.OwnerID, item.Album, item.Filename, item.Title, string(item.Kind),
		item.Duration, item.ContentType, item.Size, item.StoragePath, string(tags),
		string(item.IndexStatus), item.IndexError, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert media item: %w", err)
	}
	return nil
}

func (r *MediaRepository) GetByID(ctx context.Context, id string) (*models.MediaItem, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media_items WHERE id = $1`, id)
	item, err := scanMediaItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get media item: %w", err)
	}
	return item, nil
}

// List returns items visible to ownerScope, newest first. An empty
// scope means admin: all owners. An empty album means no album filter.
func (r *MediaRepository) List(ctx context.Context, ownerScope, album string) ([]models.MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_items WHERE 1=1`
	var args []any
	if ownerScope != "" {
		args = append(args, ownerScope)
		query += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	if album != "" {
		args = append(args, album)
		query += fmt.Sprintf(" AND album = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list media items: %w", err)
	}
	defer rows.Close()

	var items []models.MediaItem
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ListByKind returns items of one kind, filtered by owner scope and
// album like List. Indexing status is deliberately not filtered: the
// metadata fallback searches filenames and tags of items whose
// embeddings do not exist yet.
func (r *MediaRepository) ListByKind(ctx context.Context, kind models.MediaKind, ownerScope, album string) ([]models.MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_items WHERE kind = $1`
	args := []any{string(kind)}
	if ownerScope != "" {
		args = append(args, ownerScope)
		query += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	if album != "" {
		args = append(args, album)
		query += fmt.Sprintf(" AND album = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list media items: %w", err)
	}
	defer rows.Close()

	var items []models.MediaItem
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ListPending returns items awaiting ingestion, oldest first, so a
// resume pass can pick up work left behind by quota exhaustion.
func (r *MediaRepository) ListPending(ctx context.Context, limit int) ([]models.MediaItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT `+mediaColumns+` FROM media_items
		WHERE index_status = $1 ORDER BY created_at ASC LIMIT $2`,
		string(models.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}
	defer rows.Close()

	var items []models.MediaItem
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ClaimForIndexing flips an item from pending to indexing. The
// conditional update is the only admission control for ingestion:
// exactly one worker wins, everyone else sees false.
func (r *MediaRepository) ClaimForIndexing(ctx context.Context, id string) (bool, error) {
	res, err := r.db.conn.ExecContext(ctx, `
		UPDATE media_items SET index_status = $1
		WHERE id = $2 AND index_status = $3`,
		string(models.StatusIndexing), id, string(models.StatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to claim media item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *MediaRepository) UpdateStatus(ctx context.Context, id string, status models.IndexStatus, indexError string) error {
	_, err := r.db.conn.ExecContext(ctx, `
		UPDATE media_items SET index_status = $1, index_error = $2 WHERE id = $3`,
		string(status), indexError, id)
	if err != nil {
		return fmt.Errorf("failed to update index status: %w", err)
	}
	return nil
}

func (r *MediaRepository) SetDuration(ctx context.Context, id string, duration float64) error {
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE media_items SET duration = $1 WHERE id = $2`, duration, id)
	if err != nil {
		return fmt.Errorf("failed to set duration: %w", err)
	}
	return nil
}

func (r *MediaRepository) SetStoragePath(ctx context.Context, id, path string) error {
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE media_items SET storage_path = $1 WHERE id = $2`, path, id)
	if err != nil {
		return fmt.Errorf("failed to set storage path: %w", err)
	}
	return nil
}

func (r *MediaRepository) UpdateTags(ctx context.Context, id string, tags []string) error {
	data, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	_, err = r.db.conn.ExecContext(ctx,
		`UPDATE media_items SET tags = $1 WHERE id = $2`, string(data), id)
	if err != nil {
		return fmt.Errorf("failed to update tags: %w", err)
	}
	return nil
}

// StoragePaths collects the blob locations of an item and its extracted
// chunks so the caller can remove files after the rows cascade away.
func (r *MediaRepository) StoragePaths(ctx context.Context, mediaID string) ([]string, error) {
	var paths []string

	var itemPath string
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT storage_path FROM media_items WHERE id = $1`, mediaID).Scan(&itemPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if itemPath != "" {
		paths = append(paths, itemPath)
	}

	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT storage_path FROM video_chunks WHERE media_id = $1`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, rows.Err()
}

// Delete removes the item; chunks, segments and photo vectors cascade.
func (r *MediaRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.conn.ExecContext(ctx, `DELETE FROM media_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete media item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMediaItem(row rowScanner) (*models.MediaItem, error) {
	var item models.MediaItem
	var kind, status, tags string
	err := row.Scan(&item.ID, &item.OwnerID, &item.Album, &item.Filename, &item.Title,
		&kind, &item.Duration, &item.ContentType, &item.Size, &item.StoragePath,
		&tags, &status, &item.IndexError, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	item.Kind = models.MediaKind(kind)
	item.IndexStatus = models.IndexStatus(status)
	if tags != "" && tags != "[]" {
		if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &item, nil
}
