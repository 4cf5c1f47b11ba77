package handlers

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/childhealth/handbookscan/internal/storage"
	_ "golang.org/x/image/webp"
)

const msgNoImages = "請上傳至少一張照片"

var mimeTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

func (h *Handler) HandleUploadPages(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(r)
	if !ok {
		h.writeError(w, msgSessionNotFound, http.StatusNotFound)
		return
	}
	if _, exists := h.store.Session(sessionID); !exists {
		h.writeError(w, msgSessionNotFound, http.StatusNotFound)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeError(w, msgNoImages, http.StatusBadRequest)
		return
	}
	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		h.writeError(w, msgNoImages, http.StatusBadRequest)
		return
	}

	images := make([]storage.Image, 0, len(headers))
	for _, header := range headers {
		img, err := h.readImage(header)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		images = append(images, img)
	}

	pageIDs, err := h.store.AddPages(sessionID, images)
	if err != nil {
		h.writeStoreError(w, err, msgSessionNotFound)
		return
	}
	for _, id := range pageIDs {
		if err := h.queue.Enqueue(id); err != nil {
			slog.Error("Failed to queue page for OCR", "page_id", id, "err", err)
		}
	}

	slog.Info("Pages uploaded", "session_id", sessionID, "count", len(pageIDs))
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"uploaded": len(pageIDs),
		"page_ids": pageIDs,
	})
}

func (h *Handler) readImage(header *multipart.FileHeader) (storage.Image, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	mimeType, ok := mimeTypes[ext]
	if !ok {
		return storage.Image{}, fmt.Errorf("unsupported file type %q (png, jpg, jpeg, gif, webp)", header.Filename)
	}

	file, err := header.Open()
	if err != nil {
		return storage.Image{}, fmt.Errorf("failed to read file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		return storage.Image{}, fmt.Errorf("failed to read file contents: %w", err)
	}
	if int64(len(data)) > h.maxUpload {
		return storage.Image{}, fmt.Errorf("file too large (max %dMB): %s", h.maxUpload/(1024*1024), header.Filename)
	}
	if len(data) == 0 {
		return storage.Image{}, fmt.Errorf("empty file: %s", header.Filename)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return storage.Image{}, fmt.Errorf("not a valid image: %s", header.Filename)
	}
	slog.Debug("Image received", "filename", header.Filename, "width", cfg.Width, "height", cfg.Height)

	return storage.Image{Data: data, MIMEType: mimeType}, nil
}
