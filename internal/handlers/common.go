package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/childhealth/handbookscan/internal/storage"
)

const defaultMaxUpload = 10 * 1024 * 1024

// Enqueuer schedules OCR for an uploaded page
type Enqueuer interface {
	Enqueue(pageID int64) error
}

type Handler struct {
	store     *storage.Store
	queue     Enqueuer
	maxUpload int64
}

type Option func(*Handler)

// WithMaxUpload caps the size of each uploaded image
func WithMaxUpload(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

func New(store *storage.Store, queue Enqueuer, opts ...Option) *Handler {
	h := &Handler{
		store:     store,
		queue:     queue,
		maxUpload: defaultMaxUpload,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts the handbook API on mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /handbook/sessions", h.HandleCreateSession)
	mux.HandleFunc("POST /handbook/sessions/{id}/pages", h.HandleUploadPages)
	mux.HandleFunc("GET /handbook/sessions/{id}/status", h.HandleSessionStatus)
	mux.HandleFunc("PUT /handbook/sessions/{id}/complete", h.HandleCompleteSession)
	mux.HandleFunc("PUT /handbook/pages/{id}/confirm", h.HandleConfirmPage)
	mux.HandleFunc("PUT /handbook/pages/{id}/reject", h.HandleRejectPage)
	mux.HandleFunc("GET /handbook/patients/search", h.HandleSearchPatients)
	mux.HandleFunc("GET /handbook/patients/{id}/records", h.HandlePatientRecords)
	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message, "status", code)
	} else {
		slog.Warn(message, "status", code)
	}
	h.writeJSON(w, code, map[string]string{"error": message})
}

// writeStoreError maps store sentinels onto status codes
func (h *Handler) writeStoreError(w http.ResponseWriter, err error, notFound string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, notFound, http.StatusNotFound)
	case errors.Is(err, storage.ErrConflict):
		h.writeError(w, err.Error(), http.StatusConflict)
	default:
		h.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}
