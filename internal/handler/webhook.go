package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/messaging-gateway/internal/middleware"
	"github.com/capitalize-ai/messaging-gateway/internal/service"
	"github.com/capitalize-ai/messaging-gateway/internal/whatsapp"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
	"github.com/capitalize-ai/messaging-gateway/pkg/metrics"
)

const (
	eventReceived  = "EVENT_RECEIVED"
	maxWebhookBody = 1 << 20
)

// InboundProcessor runs one webhook delivery through the inbound pipeline.
type InboundProcessor interface {
	Handle(ctx context.Context, payload *whatsapp.WebhookPayload) (*service.InboundResult, error)
}

// WebhookHandler handles provider webhook endpoints.
type WebhookHandler struct {
	inbound     InboundProcessor
	verifyToken string
	logger      *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(inbound InboundProcessor, verifyToken string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		inbound:     inbound,
		verifyToken: verifyToken,
		logger:      log,
	}
}

// Verify handles GET /webhook
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := firstParam(q.Get("hub.mode"), q.Get("hub_mode"))
	token := firstParam(q.Get("hub.verify_token"), q.Get("hub_verify_token"))
	challenge := firstParam(q.Get("hub.challenge"), q.Get("hub_challenge"))

	if mode == "" || token == "" {
		writeError(w, http.StatusBadRequest, "missing parameters")
		return
	}

	if mode != "subscribe" || h.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		h.logger.Warn("webhook verification rejected", zap.String("mode", mode))
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// Receive handles POST /webhook
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := h.logger.WithRequest(middleware.GetCorrelationID(r.Context()), "")

	var payload whatsapp.WebhookPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&payload); err != nil {
		metrics.WebhookEvents.WithLabelValues("malformed").Inc()
		log.Debug("ignoring unparseable webhook body", zap.Error(err))
		acknowledge(w)
		return
	}

	result, err := h.inbound.Handle(r.Context(), &payload)
	if err != nil {
		if errors.Is(err, service.ErrPersist) {
			log.Error("failed to persist inbound message", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to persist message")
			return
		}
		log.Error("inbound processing failed", zap.Error(err))
	} else if result != nil && result.Handled {
		log.Debug("webhook processed",
			zap.String("conversation_id", result.ConversationID),
			zap.Bool("duplicate", result.Duplicate),
			zap.Bool("replied", result.Reply != nil),
		)
	}

	acknowledge(w)
}

func acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, eventReceived)
}

func firstParam(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
