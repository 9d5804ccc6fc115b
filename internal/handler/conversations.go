// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/messaging-gateway/internal/middleware"
	"github.com/capitalize-ai/messaging-gateway/internal/model"
	"github.com/capitalize-ai/messaging-gateway/internal/service"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
)

// ConversationHandler handles operator conversation endpoints.
type ConversationHandler struct {
	service  *service.ConversationService
	messages *service.MessageService
	logger   *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, messages *service.MessageService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service:  svc,
		messages: messages,
		logger:   log,
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	resp, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, err, "failed to get conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Messages handles GET /api/v1/conversations/{id}/messages
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)

	resp, err := h.service.Messages(r.Context(), id, limit, offset)
	if err != nil {
		h.serviceError(w, err, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/conversations/{id}/messages
func (h *ConversationHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageBody(req.Body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.messages.Send(r.Context(), id, &req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, resp)
	case errors.Is(err, service.ErrEmptyBody):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	default:
		h.logger.Error("operator send failed",
			zap.String("conversation_id", id),
			zap.String("operator_id", middleware.GetOperatorID(r.Context())),
			zap.String("operator_name", middleware.GetOperatorName(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// MarkRead handles POST /api/v1/conversations/{id}/read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	n, err := h.service.MarkRead(r.Context(), id)
	if err != nil {
		h.serviceError(w, err, "failed to mark messages as read")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// UpdateBot handles PUT/PATCH /api/v1/conversations/{id}/bot
func (h *ConversationHandler) UpdateBot(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.UpdateBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BotEnabled == nil {
		writeError(w, http.StatusBadRequest, "bot_enabled is required")
		return
	}

	conv, err := h.service.SetBotEnabled(r.Context(), id, *req.BotEnabled)
	if err != nil {
		h.serviceError(w, err, "failed to update bot status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conv.ID,
		"bot_enabled":     conv.Bot.Enabled,
	})
}

func (h *ConversationHandler) serviceError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	h.logger.Error(message, zap.Error(err))
	writeError(w, http.StatusInternalServerError, message)
}

func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

func pagination(r *http.Request) (limit, offset int) {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
