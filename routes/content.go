package routes

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"mediaforge/logger"
	"mediaforge/models"
)

// mediaContent streams the bytes of a ready media record from its volume.
func (h *handlers) mediaContent(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Media.Get(chi.URLParam(r, "urn"))
	if err != nil {
		writeError(w, err)
		return
	}
	if rec.Status != models.StatusReady {
		http.Error(w, "Media is "+string(rec.Status)+".", http.StatusConflict)
		return
	}

	d, loc, err := h.Selector.Resolve(rec.PrivateLocator)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := d.Open(r.Context(), loc)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "Media content not found.", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Errorf("Failed to open %s: %v", loc.Redacted(), err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	if rec.MediaType != "" {
		w.Header().Set("Content-Type", rec.MediaType)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		logger.Warnf("Streaming %s interrupted: %v", rec.URN, err)
	}
}
