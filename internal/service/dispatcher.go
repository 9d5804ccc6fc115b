package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
	"github.com/capitalize-ai/messaging-gateway/internal/realtime"
	"github.com/capitalize-ai/messaging-gateway/internal/store"
	"github.com/capitalize-ai/messaging-gateway/internal/whatsapp"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
	"github.com/capitalize-ai/messaging-gateway/pkg/metrics"
)

// Sender delivers outbound messages through the provider.
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendButtons(ctx context.Context, to, body string, buttons []whatsapp.Button) (string, error)
	SendList(ctx context.Context, to string, list whatsapp.ListMessage) (string, error)
}

// Dispatcher renders flow nodes into provider payloads, sends them and records
// the outbound message.
type Dispatcher struct {
	sender    Sender
	messages  store.MessageRepository
	publisher realtime.Publisher
	logger    *logger.Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(sender Sender, messages store.MessageRepository, publisher realtime.Publisher, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		messages:  messages,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
}

// Render sends node to the conversation's contact. A nil result with a nil
// error means nothing was sent.
func (d *Dispatcher) Render(ctx context.Context, conv *model.Conversation, node *model.Node) (*model.Message, error) {
	if node == nil {
		return nil, nil
	}

	switch s := node.Settings.(type) {
	case model.ButtonsSettings:
		if len(s.Buttons) == 0 {
			return d.SendText(ctx, conv, node.Body)
		}
		buttons := make([]whatsapp.Button, 0, len(s.Buttons))
		for _, o := range s.Buttons {
			buttons = append(buttons, whatsapp.Button{ID: o.ID, Title: o.Title})
		}
		return d.deliver(ctx, conv, node.Body, func(to string) (string, error) {
			return d.sender.SendButtons(ctx, to, node.Body, buttons)
		})

	case model.ListSettings:
		if len(s.Rows) == 0 {
			return d.SendText(ctx, conv, node.Body)
		}
		rows := make([]whatsapp.ListRow, 0, len(s.Rows))
		for _, o := range s.Rows {
			rows = append(rows, whatsapp.ListRow{ID: o.ID, Title: o.Title, Description: o.Description})
		}
		list := whatsapp.ListMessage{
			Body:         node.Body,
			ButtonText:   s.Label(),
			SectionTitle: s.Section(),
			Rows:         rows,
		}
		return d.deliver(ctx, conv, node.Body, func(to string) (string, error) {
			return d.sender.SendList(ctx, to, list)
		})

	case model.TextSettings, *model.InputSettings, model.HandoffSettings:
		return d.SendText(ctx, conv, node.Body)
	}
	return nil, nil
}

// SendText sends body as plain text. Empty bodies are skipped.
func (d *Dispatcher) SendText(ctx context.Context, conv *model.Conversation, body string) (*model.Message, error) {
	if body == "" {
		return nil, nil
	}
	return d.deliver(ctx, conv, body, func(to string) (string, error) {
		return d.sender.SendText(ctx, to, body)
	})
}

func (d *Dispatcher) deliver(ctx context.Context, conv *model.Conversation, body string, send func(to string) (string, error)) (*model.Message, error) {
	if conv.Contact == nil || conv.Contact.WhatsAppID == "" {
		return nil, fmt.Errorf("conversation %s has no contact address", conv.ID)
	}

	providerID, err := send(conv.Contact.WhatsAppID)
	if errors.Is(err, whatsapp.ErrMissingMessageID) {
		// Delivered, but status updates cannot be matched to this record.
		d.logger.Warn("provider accepted message without an id",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
	} else if err != nil {
		return nil, err
	}

	msg, _, err := d.messages.CreateMessage(ctx, &model.Message{
		ConversationID:    conv.ID,
		Sender:            model.SenderOperator,
		Kind:              model.KindText,
		Body:              model.StringPtr(body),
		Status:            model.StatusSent,
		ProviderMessageID: model.StringPtr(providerID),
		CreatedAt:         d.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record outbound message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(msg.Sender), string(msg.Kind)).Inc()

	d.publish(ctx, conv, msg)
	return msg, nil
}

func (d *Dispatcher) publish(ctx context.Context, conv *model.Conversation, msg *model.Message) {
	d.publisher.PublishSummary(ctx, model.SummaryEvent{
		ConversationID:     conv.ID,
		Name:               conv.Contact.DisplayName(),
		LastMessagePreview: msg.Preview(),
		Timestamp:          msg.CreatedAt.UTC(),
	})
	d.publisher.PublishMessage(ctx, model.NewMessageEvent(msg))
	d.logger.Debug("message published",
		zap.String("conversation_id", conv.ID),
		zap.String("message_id", msg.ID),
	)
}
