package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

const (
	msgStaffRequired   = "請輸入員工姓名"
	msgSessionNotFound = "找不到工作階段"
	msgPageNotFound    = "找不到頁面"
)

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ScannedBy string `json:"scanned_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	scannedBy := strings.TrimSpace(request.ScannedBy)
	if scannedBy == "" {
		h.writeError(w, msgStaffRequired, http.StatusBadRequest)
		return
	}

	session := h.store.CreateSession(scannedBy)
	slog.Info("Session created", "session_id", session.ID, "scanned_by", scannedBy)

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": session.ID,
		"status":     session.Status,
		"scanned_by": session.ScannedBy,
	})
}

func (h *Handler) HandleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(r)
	if !ok {
		h.writeError(w, msgSessionNotFound, http.StatusNotFound)
		return
	}

	snapshot, err := h.store.Status(sessionID)
	if err != nil {
		h.writeStoreError(w, err, msgSessionNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) HandleCompleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(r)
	if !ok {
		h.writeError(w, msgSessionNotFound, http.StatusNotFound)
		return
	}

	if err := h.store.CompleteSession(sessionID); err != nil {
		h.writeStoreError(w, err, msgSessionNotFound)
		return
	}
	slog.Info("Session completed", "session_id", sessionID)
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
