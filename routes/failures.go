package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediaforge/logger"
)

// getFailure returns the failure record of a task.
func (h *handlers) getFailure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")

	record, err := h.Failures.GetFailure(id)
	if err != nil {
		logger.Errorf("Failed to query failure for task %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "No failure recorded for task.", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// listFailures lists all failures, newest first.
func (h *handlers) listFailures(w http.ResponseWriter, r *http.Request) {
	list, err := h.Failures.ListFailures()
	if err != nil {
		logger.Errorf("Failed to list failures: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"failures": list,
		"count":    len(list),
	})
}

// deleteFailure acknowledges and removes the failure record of a task.
func (h *handlers) deleteFailure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")

	record, err := h.Failures.GetFailure(id)
	if err != nil {
		logger.Errorf("Failed to query failure for task %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "No failure recorded for task.", http.StatusNotFound)
		return
	}
	if err := h.Failures.DeleteFailure(id); err != nil {
		logger.Errorf("Failed to delete failure for task %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
