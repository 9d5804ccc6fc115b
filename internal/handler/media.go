package handler

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/messaging-gateway/internal/media"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
)

// MediaHandler serves stored inbound media.
type MediaHandler struct {
	storage media.StorageProvider
	logger  *logger.Logger
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(storage media.StorageProvider, log *logger.Logger) *MediaHandler {
	return &MediaHandler{storage: storage, logger: log}
}

// Serve handles GET <media prefix>/*
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		writeError(w, http.StatusNotFound, "media not found")
		return
	}

	rc, err := h.storage.Open(r.Context(), key)
	switch {
	case errors.Is(err, media.ErrPathTraversal):
		writeError(w, http.StatusBadRequest, "invalid media path")
		return
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, "media not found")
		return
	case err != nil:
		h.logger.Error("failed to open media", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open media")
		return
	}
	defer rc.Close()

	w.Header().Set("Cache-Control", "public, max-age=86400")
	if rs, ok := rc.(io.ReadSeeker); ok {
		// Content type from the extension, plus range requests for audio and video.
		http.ServeContent(w, r, key, time.Time{}, rs)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, rc)
}
