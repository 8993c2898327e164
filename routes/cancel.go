package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediaforge/logger"
)

// cancelTask cancels a task that is still waiting for a worker.
func (h *handlers) cancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	logger.Infof("Attempting to cancel task: %s", id)
	if err := h.Jobs.Cancel(id); err != nil {
		logger.Warnf("Failed to cancel task %s: %v", id, err)
		writeError(w, err)
		return
	}

	logger.Infof("Task cancelled: %s", id)
	w.WriteHeader(http.StatusNoContent)
}
