package routes

import (
	"encoding/json"
	"net/http"

	"mediaforge/logger"
	"mediaforge/models"
)

// TranscodeResponse names the accepted task and its output record.
type TranscodeResponse struct {
	Task string `json:"task"`
	URN  string `json:"urn"`
}

func (h *handlers) transcode(w http.ResponseWriter, r *http.Request) {
	var req models.TranscodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	sub, err := h.Jobs.Submit(r.Context(), req)
	if err != nil {
		logger.Warnf("Transcode request rejected: %v", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/tasks/"+sub.Task.ID)
	writeJSON(w, http.StatusAccepted, TranscodeResponse{Task: sub.Task.ID, URN: sub.Output.URN})
}
