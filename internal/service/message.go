package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
	"github.com/capitalize-ai/messaging-gateway/internal/store"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
	"github.com/capitalize-ai/messaging-gateway/pkg/tracing"
)

// ErrEmptyBody is returned for operator sends without text.
var ErrEmptyBody = errors.New("body is required")

// MessageService handles operator-initiated sends.
type MessageService struct {
	conversations store.ConversationRepository
	dispatcher    *Dispatcher
	logger        *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(conversations store.ConversationRepository, dispatcher *Dispatcher, log *logger.Logger) *MessageService {
	return &MessageService{
		conversations: conversations,
		dispatcher:    dispatcher,
		logger:        log,
	}
}

// Send delivers an operator message to the conversation's contact. Provider
// failures are returned to the caller.
func (s *MessageService) Send(ctx context.Context, conversationID string, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	ctx, span := tracing.Start(ctx, "message.send")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, ErrEmptyBody
	}

	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, notFound(err)
	}

	msg, err := s.dispatcher.SendText(ctx, conv, body)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("operator send failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	return &model.SendMessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         msg.Sender,
		Body:           msg.BodyText(),
		Timestamp:      msg.CreatedAt,
	}, nil
}
