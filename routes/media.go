package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediaforge/locator"
	"mediaforge/models"
)

// CreateMediaRequest registers an existing resource as a media record.
type CreateMediaRequest struct {
	PrivateLocator string `json:"private_locator"`
	PublicURL      string `json:"public_url,omitempty"`
	MediaType      string `json:"media_type,omitempty"`
}

// PublishRequest optionally names the publication.
type PublishRequest struct {
	Name string `json:"name,omitempty"`
}

// mediaView is the record as served: the private locator never carries
// credentials.
func mediaView(rec models.MediaRecord) models.MediaRecord {
	rec.PrivateLocator = locator.Redact(rec.PrivateLocator)
	return rec
}

// listMedia lists records, optionally filtered by parent, status and
// media_type query parameters.
func (h *handlers) listMedia(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		records []models.MediaRecord
		err     error
	)
	if parent := q.Get("parent"); parent != "" {
		records, err = h.Media.Children(parent)
	} else {
		records, err = h.Media.List()
	}
	if err != nil {
		writeError(w, err)
		return
	}

	status, mediaType := models.MediaStatus(q.Get("status")), q.Get("media_type")
	views := make([]models.MediaRecord, 0, len(records))
	for _, rec := range records {
		if status != "" && rec.Status != status {
			continue
		}
		if mediaType != "" && rec.MediaType != mediaType {
			continue
		}
		views = append(views, mediaView(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"media": views,
		"count": len(views),
	})
}

func (h *handlers) getMedia(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Media.Get(chi.URLParam(r, "urn"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mediaView(*rec))
}

func (h *handlers) createMedia(w http.ResponseWriter, r *http.Request) {
	var req CreateMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.PrivateLocator == "" {
		http.Error(w, "private_locator is required", http.StatusBadRequest)
		return
	}
	if _, _, err := h.Selector.Resolve(req.PrivateLocator); err != nil {
		writeError(w, err)
		return
	}

	rec := models.NewMediaRecord(req.PrivateLocator, req.MediaType, models.StatusReady)
	rec.PublicURL = req.PublicURL
	if err := h.Media.Save(rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mediaView(*rec))
}

// deleteMedia removes a record. Published records are unpublished first;
// records still being transcoded are refused.
func (h *handlers) deleteMedia(w http.ResponseWriter, r *http.Request) {
	urn := chi.URLParam(r, "urn")
	rec, err := h.Media.Get(urn)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec.Status == models.StatusTranscoding {
		http.Error(w, "Media is being transcoded.", http.StatusConflict)
		return
	}
	if rec.PublicURL != "" && h.Publisher != nil {
		if rec, err = h.Publisher.Unpublish(r.Context(), urn); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := h.Media.Delete(urn); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mediaView(*rec))
}

func (h *handlers) publishMedia(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	rec, err := h.Publisher.Publish(r.Context(), chi.URLParam(r, "urn"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mediaView(*rec))
}

func (h *handlers) unpublishMedia(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Publisher.Unpublish(r.Context(), chi.URLParam(r, "urn"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mediaView(*rec))
}
