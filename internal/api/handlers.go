package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mkravets/luminio/internal/database"
	"github.com/mkravets/luminio/internal/models"
	"github.com/mkravets/luminio/internal/queue"
	"github.com/mkravets/luminio/internal/search"
	"github.com/mkravets/luminio/internal/storage"
)

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// TaskQueue is the slice of the ingest queue the API needs.
type TaskQueue interface {
	Enqueue(ctx context.Context, task queue.IngestTask) error
}

type App struct {
	Storage       storage.Storage
	Media         *database.MediaRepository
	Queue         TaskQueue
	Merger        *search.Merger
	MaxUploadSize int64
	Logger        *zap.Logger
}

type mediaResponse struct {
	ID          string   `json:"id"`
	Album       string   `json:"album,omitempty"`
	Filename    string   `json:"filename"`
	Title       string   `json:"title,omitempty"`
	Kind        string   `json:"kind"`
	Duration    float64  `json:"duration,omitempty"`
	ContentType string   `json:"content_type"`
	Size        int64    `json:"size"`
	Tags        []string `json:"tags,omitempty"`
	IndexStatus string   `json:"index_status"`
	CreatedAt   string   `json:"created_at"`
}

func toMediaResponse(item *models.MediaItem) mediaResponse {
	return mediaResponse{
		ID:          item.ID,
		Album:       item.Album,
		Filename:    item.Filename,
		Title:       item.Title,
		Kind:        string(item.Kind),
		Duration:    item.Duration,
		ContentType: item.ContentType,
		Size:        item.Size,
		Tags:        item.Tags,
		IndexStatus: string(item.IndexStatus),
		CreatedAt:   item.CreatedAt.Format(time.RFC3339),
	}
}

// UploadHandler accepts a multipart photo or video, stores the blob,
// records the item as pending and enqueues it for indexing. The
// response returns immediately; indexing progress is visible through
// the status endpoint.
func (app *App) UploadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		app.writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		app.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	kind, contentType, err := classifyUpload(header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		app.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	locator, err := app.Storage.Save(file, storage.FileInfo{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
	})
	if err != nil {
		app.Logger.Error("failed to store upload", zap.Error(err))
		app.writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	item := models.NewMediaItem(userID, r.FormValue("album"), header.Filename,
		r.FormValue("title"), kind, contentType, header.Size)
	item.StoragePath = locator
	if tags := r.FormValue("tags"); tags != "" {
		item.Tags = splitTags(tags)
	}

	if err := app.Media.Insert(r.Context(), item); err != nil {
		app.Storage.Delete(locator)
		app.Logger.Error("failed to record upload", zap.Error(err))
		app.writeError(w, http.StatusInternalServerError, "failed to save media item")
		return
	}

	if err := app.Queue.Enqueue(r.Context(), queue.IngestTask{MediaID: item.ID}); err != nil {
		// The item stays pending; a resume pass will pick it up.
		app.Logger.Warn("failed to enqueue ingest task",
			zap.String("media_id", item.ID),
			zap.Error(err))
	}

	app.writeJSON(w, http.StatusCreated, toMediaResponse(item))
}

func (app *App) ListMediaHandler(w http.ResponseWriter, r *http.Request) {
	scope, ok := ownerScope(w, r)
	if !ok {
		return
	}

	items, err := app.Media.List(r.Context(), scope, r.URL.Query().Get("album"))
	if err != nil {
		app.Logger.Error("failed to list media", zap.Error(err))
		app.writeError(w, http.StatusInternalServerError, "failed to list media")
		return
	}

	out := make([]mediaResponse, 0, len(items))
	for i := range items {
		out = append(out, toMediaResponse(&items[i]))
	}
	app.writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (app *App) GetMediaHandler(w http.ResponseWriter, r *http.Request) {
	item, ok := app.loadVisibleItem(w, r)
	if !ok {
		return
	}
	app.writeJSON(w, http.StatusOK, toMediaResponse(item))
}

// StatusHandler reports the indexing lifecycle of one item, including
// the failure reason when indexing gave up.
func (app *App) StatusHandler(w http.ResponseWriter, r *http.Request) {
	item, ok := app.loadVisibleItem(w, r)
	if !ok {
		return
	}
	app.writeJSON(w, http.StatusOK, map[string]any{
		"id":           item.ID,
		"index_status": string(item.IndexStatus),
		"index_error":  item.IndexError,
	})
}

// StreamMediaHandler serves the original blob with Range support so
// video results can seek straight to a matched segment.
func (app *App) StreamMediaHandler(w http.ResponseWriter, r *http.Request) {
	item, ok := app.loadVisibleItem(w, r)
	if !ok {
		return
	}

	file, err := app.Storage.Open(item.StoragePath)
	if err != nil {
		app.writeError(w, http.StatusNotFound, "media file not found")
		return
	}
	defer file.Close()

	modTime := time.Now()
	if stat, err := file.(interface{ Stat() (os.FileInfo, error) }).Stat(); err == nil {
		modTime = stat.ModTime()
	}

	w.Header().Set("Content-Type", item.ContentType)
	http.ServeContent(w, r, item.Filename, modTime, file)
}

// DeleteMediaHandler removes the item's rows (vectors and chunks
// cascade) and then its blobs. Blob removal failures are logged, not
// surfaced: the rows are gone, which is what callers observe.
func (app *App) DeleteMediaHandler(w http.ResponseWriter, r *http.Request) {
	item, ok := app.loadVisibleItem(w, r)
	if !ok {
		return
	}

	paths, err := app.Media.StoragePaths(r.Context(), item.ID)
	if err != nil {
		app.Logger.Error("failed to collect blob paths", zap.Error(err))
		app.writeError(w, http.StatusInternalServerError, "failed to delete media")
		return
	}

	if err := app.Media.Delete(r.Context(), item.ID); err != nil {
		app.Logger.Error("failed to delete media rows", zap.Error(err))
		app.writeError(w, http.StatusInternalServerError, "failed to delete media")
		return
	}

	for _, p := range paths {
		if err := app.Storage.Delete(p); err != nil {
			app.Logger.Warn("failed to remove blob",
				zap.String("media_id", item.ID),
				zap.String("locator", p),
				zap.Error(err))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// loadVisibleItem fetches the {id} item and enforces ownership: users
// only see their own items, the admin header sees everything.
func (app *App) loadVisibleItem(w http.ResponseWriter, r *http.Request) (*models.MediaItem, bool) {
	scope, ok := ownerScope(w, r)
	if !ok {
		return nil, false
	}

	id := chi.URLParam(r, "id")
	item, err := app.Media.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			app.writeError(w, http.StatusNotFound, "media item not found")
			return nil, false
		}
		app.Logger.Error("failed to load media item", zap.Error(err))
		app.writeError(w, http.StatusInternalServerError, "failed to load media item")
		return nil, false
	}
	if scope != "" && item.OwnerID != scope {
		// Hide other users' items entirely rather than admitting they
		// exist.
		app.writeError(w, http.StatusNotFound, "media item not found")
		return nil, false
	}
	return item, true
}

func classifyUpload(filename, contentType string) (models.MediaKind, string, error) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.KindPhoto, contentType, nil
	case strings.HasPrefix(contentType, "video/"):
		return models.KindVideo, contentType, nil
	}

	// Octet-stream and friends: fall back to the extension.
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".heic":
		return models.KindPhoto, "image/" + strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."), nil
	case ".mp4":
		return models.KindVideo, "video/mp4", nil
	case ".mov":
		return models.KindVideo, "video/quicktime", nil
	case ".mkv":
		return models.KindVideo, "video/x-matroska", nil
	case ".webm":
		return models.KindVideo, "video/webm", nil
	}
	return "", "", errors.New("unsupported file type")
}

func splitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	var tags []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// requireUser reads the caller identity from X-User-ID. Every mutating
// and media-reading endpoint needs one.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, `{"error":"X-User-ID header is required"}`, http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

// ownerScope resolves the visibility filter: the user's own ID, or
// empty (all owners) when the admin header is set.
func ownerScope(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return "", false
	}
	if r.Header.Get("X-Admin") == "true" {
		return "", true
	}
	return userID, true
}

func (app *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Logger.Error("failed to encode response", zap.Error(err))
	}
}

func (app *App) writeError(w http.ResponseWriter, status int, message string) {
	app.writeJSON(w, status, map[string]string{"error": message})
}
