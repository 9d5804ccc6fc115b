package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/messaging-gateway/internal/flow"
	"github.com/capitalize-ai/messaging-gateway/internal/media"
	"github.com/capitalize-ai/messaging-gateway/internal/model"
	"github.com/capitalize-ai/messaging-gateway/internal/realtime"
	"github.com/capitalize-ai/messaging-gateway/internal/store"
	"github.com/capitalize-ai/messaging-gateway/internal/whatsapp"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
	"github.com/capitalize-ai/messaging-gateway/pkg/metrics"
	"github.com/capitalize-ai/messaging-gateway/pkg/tracing"
)

// ErrPersist marks failures that must be retried by the provider.
var ErrPersist = errors.New("inbound message not persisted")

// MediaFetcher stores an inbound attachment and returns its public URL.
type MediaFetcher interface {
	Fetch(ctx context.Context, att media.Attachment) (string, error)
}

// FlowRunner runs one bot turn for a conversation.
type FlowRunner interface {
	Handle(ctx context.Context, conversationID string, in flow.Input) (*flow.Turn, error)
}

// InboundResult describes what happened to a webhook delivery.
type InboundResult struct {
	// Handled is false when the payload carried no message.
	Handled        bool
	Duplicate      bool
	ConversationID string
	Message        *model.Message
	Reply          *model.Message
}

// InboundService runs webhook deliveries through normalization, persistence,
// realtime fan-out and the bot.
type InboundService struct {
	resolver   *Resolver
	messages   store.MessageRepository
	fetcher    MediaFetcher
	publisher  realtime.Publisher
	engine     FlowRunner
	dispatcher *Dispatcher
	logger     *logger.Logger
	now        func() time.Time
}

// NewInboundService creates an inbound service. fetcher may be nil, in which case
// attachments are stored without a media reference.
func NewInboundService(
	resolver *Resolver,
	messages store.MessageRepository,
	fetcher MediaFetcher,
	publisher realtime.Publisher,
	engine FlowRunner,
	dispatcher *Dispatcher,
	log *logger.Logger,
) *InboundService {
	return &InboundService{
		resolver:   resolver,
		messages:   messages,
		fetcher:    fetcher,
		publisher:  publisher,
		engine:     engine,
		dispatcher: dispatcher,
		logger:     log,
		now:        time.Now,
	}
}

// Handle processes one webhook payload. Only failures to record the message are
// returned, wrapped in ErrPersist; media, realtime and bot failures are logged.
func (s *InboundService) Handle(ctx context.Context, payload *whatsapp.WebhookPayload) (*InboundResult, error) {
	ctx, span := tracing.Start(ctx, "inbound.handle")
	defer span.End()

	draft, msg, value, ok := whatsapp.Normalize(payload)
	if !ok {
		metrics.WebhookEvents.WithLabelValues("empty").Inc()
		return &InboundResult{}, nil
	}
	span.SetAttributes(
		attribute.String("message.kind", string(draft.Kind)),
		attribute.String("message.provider_id", draft.ProviderMessageID),
	)

	waID, name, avatar := value.Profile(msg)
	now := s.now()
	conv, err := s.resolver.Resolve(ctx, model.ContactProfile{WhatsAppID: waID, Name: name, AvatarURL: avatar}, now)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	log := s.logger.WithConversation(conv.ID)
	span.SetAttributes(attribute.String("conversation.id", conv.ID))

	var mediaURL string
	if draft.MediaURL != "" {
		mediaURL = s.fetchMedia(ctx, log, conv.ID, draft)
	}

	stored, created, err := s.messages.CreateMessage(ctx, &model.Message{
		ConversationID:    conv.ID,
		Sender:            model.SenderContact,
		Kind:              draft.Kind,
		Body:              model.StringPtr(draft.Body),
		MediaURL:          model.StringPtr(mediaURL),
		MediaName:         model.StringPtr(draft.MediaName),
		Status:            model.StatusReceived,
		ProviderMessageID: model.StringPtr(draft.ProviderMessageID),
		CreatedAt:         now,
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}

	result := &InboundResult{Handled: true, ConversationID: conv.ID, Message: stored}
	if !created {
		metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
		log.Info("duplicate delivery ignored", zap.String("provider_message_id", draft.ProviderMessageID))
		result.Duplicate = true
		return result, nil
	}
	metrics.WebhookEvents.WithLabelValues("stored").Inc()
	metrics.MessagesTotal.WithLabelValues(string(stored.Sender), string(stored.Kind)).Inc()

	s.publisher.PublishSummary(ctx, model.SummaryEvent{
		ConversationID:     conv.ID,
		Name:               conv.Contact.DisplayName(),
		LastMessagePreview: stored.Preview(),
		Timestamp:          now.UTC(),
	})
	s.publisher.PublishMessage(ctx, model.NewMessageEvent(stored))

	result.Reply = s.runBot(ctx, log, conv.ID, draft)
	return result, nil
}

func (s *InboundService) fetchMedia(ctx context.Context, log *logger.Logger, conversationID string, draft whatsapp.Draft) string {
	if s.fetcher == nil {
		return ""
	}
	url, err := s.fetcher.Fetch(ctx, media.Attachment{
		ConversationID: conversationID,
		Kind:           draft.Kind,
		URL:            draft.MediaURL,
		Name:           draft.MediaName,
		Mime:           draft.Mime,
	})
	if err != nil {
		log.Warn("media download failed, storing message without media",
			zap.String("kind", string(draft.Kind)),
			zap.Error(err),
		)
		return ""
	}
	return url
}

// runBot runs the engine and sends its reply. Nothing here reaches the caller.
func (s *InboundService) runBot(ctx context.Context, log *logger.Logger, conversationID string, draft whatsapp.Draft) (reply *model.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("bot panicked", zap.Any("panic", r), zap.Stack("stack"))
			reply = nil
		}
	}()

	if s.engine == nil {
		return nil
	}
	turn, err := s.engine.Handle(ctx, conversationID, flow.Input{
		Text:    draft.Body,
		ReplyID: draft.InteractiveReplyID,
	})
	if err != nil {
		log.Error("bot turn failed", zap.Error(err))
		return nil
	}
	if turn.Node == nil {
		return nil
	}

	msg, err := s.dispatcher.Render(ctx, turn.Conversation, turn.Node)
	if err != nil {
		log.Error("bot reply failed",
			zap.String("node_id", turn.Node.ID),
			zap.String("node_type", string(turn.Node.Kind)),
			zap.Error(err),
		)
		return nil
	}
	return msg
}
