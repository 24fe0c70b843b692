package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/erazemk/ponudbe/internal/imaging"
	"github.com/erazemk/ponudbe/internal/logging"
	"github.com/erazemk/ponudbe/internal/store"
)

// ImagesHandler serves stored avatar and preview images.
type ImagesHandler struct {
	DB *sql.DB
}

// Get handles GET /api/images/{kind}/{file}.
func (h *ImagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind := imaging.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		jsonError(w, http.StatusNotFound, "image not found")
		return
	}

	name := string(kind) + "/" + chi.URLParam(r, "file")
	img, err := store.GetImage(r.Context(), h.DB, name)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get image", "name", name, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if img == nil {
		jsonError(w, http.StatusNotFound, "image not found")
		return
	}

	etag := `"` + img.Checksum + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", img.MIME)
	if _, err := w.Write(img.Data); err != nil {
		logging.FromContext(r.Context()).Debug("failed to write image", "name", name, "error", err)
	}
}
