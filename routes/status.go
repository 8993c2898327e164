package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediaforge/logger"
)

// taskStatus returns the polling payload of a task.
func (h *handlers) taskStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, ok, err := h.Jobs.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		logger.Debugf("Task not found: %s", id)
		http.Error(w, "Task not found.", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
