package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/messaging-gateway/internal/middleware"
	"github.com/capitalize-ai/messaging-gateway/internal/service"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
)

// FlowHandler exposes read-only flow inspection.
type FlowHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewFlowHandler creates a new flow handler.
func NewFlowHandler(svc *service.ConversationService, log *logger.Logger) *FlowHandler {
	return &FlowHandler{service: svc, logger: log}
}

// List handles GET /api/v1/flows
func (h *FlowHandler) List(w http.ResponseWriter, r *http.Request) {
	flows, err := h.service.Flows(r.Context())
	if err != nil {
		h.logger.Error("failed to list flows", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list flows")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flows": flows})
}

// Nodes handles GET /api/v1/flows/{id}/nodes
func (h *FlowHandler) Nodes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateFlowID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	nodes, err := h.service.FlowNodes(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "flow not found")
			return
		}
		h.logger.Error("failed to list flow nodes", zap.String("flow_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list flow nodes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flow_id": id, "nodes": nodes})
}
