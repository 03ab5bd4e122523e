package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkravets/luminio/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		Dimensions: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestMediaItem(t *testing.T, db *DB, ownerID string, kind models.MediaKind) *models.MediaItem {
	t.Helper()

	item := models.NewMediaItem(ownerID, "vacation", "sunset_beach.mp4", "Beach sunset", kind, "video/mp4", 1024)
	if kind == models.KindPhoto {
		item.Filename = "sunset_beach.jpg"
		item.ContentType = "image/jpeg"
	}
	require.NoError(t, NewMediaRepository(db).Insert(context.Background(), item))
	return item
}
