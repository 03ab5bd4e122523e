package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/mkravets/luminio/internal/models"
	"github.com/mkravets/luminio/internal/search"
)

type searchRequest struct {
	Query      string `json:"query"`
	Mode       string `json:"mode,omitempty"` // "vector" (default) or "metadata"
	TopKPhotos int    `json:"top_k_photos,omitempty"`
	TopKVideos int    `json:"top_k_videos,omitempty"`
	Album      string `json:"album,omitempty"`
}

// SearchHandler runs a unified semantic search over the caller's
// library. Provider outages never produce an error here; the response
// just carries source=metadata instead of source=vector.
func (app *App) SearchHandler(w http.ResponseWriter, r *http.Request) {
	scope, ok := ownerScope(w, r)
	if !ok {
		return
	}
	userID := r.Header.Get("X-User-ID")

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if search.Normalize(req.Query) == "" {
		app.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	mode := models.SourceVector
	switch req.Mode {
	case "", "vector":
	case "metadata":
		mode = models.SourceMetadata
	default:
		app.writeError(w, http.StatusBadRequest, "mode must be \"vector\" or \"metadata\"")
		return
	}

	resp, err := app.Merger.Search(r.Context(), search.Request{
		Query:      req.Query,
		Mode:       mode,
		TopKPhotos: req.TopKPhotos,
		TopKVideos: req.TopKVideos,
		OwnerScope: scope,
		Album:      req.Album,
		UserID:     userID,
	})
	if err != nil {
		app.Logger.Error("search failed",
			zap.String("query", req.Query),
			zap.Error(err))
		app.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	app.writeJSON(w, http.StatusOK, resp)
}
