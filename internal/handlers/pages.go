package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

func (h *Handler) HandleConfirmPage(w http.ResponseWriter, r *http.Request) {
	pageID, ok := pathID(r)
	if !ok {
		h.writeError(w, msgPageNotFound, http.StatusNotFound)
		return
	}

	var request struct {
		ConfirmedBy string          `json:"confirmed_by"`
		Corrections json.RawMessage `json:"corrections"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && err != io.EOF {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	page, err := h.store.ConfirmPage(pageID, request.ConfirmedBy, request.Corrections)
	if err != nil {
		h.writeStoreError(w, err, msgPageNotFound)
		return
	}

	slog.Info("Page confirmed", "page_id", pageID, "page_type", page.Type, "confirmed_by", request.ConfirmedBy)
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "page_id": pageID})
}

func (h *Handler) HandleRejectPage(w http.ResponseWriter, r *http.Request) {
	pageID, ok := pathID(r)
	if !ok {
		h.writeError(w, msgPageNotFound, http.StatusNotFound)
		return
	}

	if err := h.store.RejectPage(pageID); err != nil {
		h.writeStoreError(w, err, msgPageNotFound)
		return
	}
	slog.Info("Page rejected", "page_id", pageID)
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
