// Package service provides business logic for the messaging gateway.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
	"github.com/capitalize-ai/messaging-gateway/internal/store"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
)

// ErrNotFound is returned when a conversation or flow does not exist.
var ErrNotFound = errors.New("not found")

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// BotSwitch toggles automated handling in step with bot turns.
type BotSwitch interface {
	SetEnabled(ctx context.Context, conversationID string, enabled bool) (*model.Conversation, error)
}

// ConversationService handles operator-facing conversation operations.
type ConversationService struct {
	store  store.Store
	bots   BotSwitch
	logger *logger.Logger
}

// NewConversationService creates a new conversation service. Bot toggles go
// through bots so they serialize with the flow engine.
func NewConversationService(st store.Store, bots BotSwitch, log *logger.Logger) *ConversationService {
	return &ConversationService{store: st, bots: bots, logger: log}
}

// List returns conversation summaries ordered by recent activity.
func (s *ConversationService) List(ctx context.Context, limit, offset int) (*model.ListConversationsResponse, error) {
	limit, offset = page(limit, offset)
	convs, total, err := s.store.ListConversations(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if convs == nil {
		convs = []model.ConversationSummary{}
	}
	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       offset+len(convs) < total,
	}, nil
}

// Get retrieves a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, notFound(err)
	}
	return conv, nil
}

// Messages returns a page of the conversation's messages, oldest first.
func (s *ConversationService) Messages(ctx context.Context, conversationID string, limit, offset int) (*model.ListMessagesResponse, error) {
	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}
	limit, offset = page(limit, offset)

	// One extra row tells whether another page exists.
	msgs, err := s.store.ListMessages(ctx, conversationID, limit+1, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return &model.ListMessagesResponse{Messages: msgs, HasMore: hasMore}, nil
}

// MarkRead marks the contact's received messages as read.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	if _, err := s.Get(ctx, conversationID); err != nil {
		return 0, err
	}
	n, err := s.store.MarkRead(ctx, conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark read: %w", err)
	}
	return n, nil
}

// SetBotEnabled turns automated handling on or off.
func (s *ConversationService) SetBotEnabled(ctx context.Context, conversationID string, enabled bool) (*model.Conversation, error) {
	conv, err := s.bots.SetEnabled(ctx, conversationID, enabled)
	if err != nil {
		return nil, notFound(err)
	}
	s.logger.Info("bot toggled",
		zap.String("conversation_id", conversationID),
		zap.Bool("bot_enabled", enabled),
	)
	return conv, nil
}

// Flows lists authored flows.
func (s *ConversationService) Flows(ctx context.Context) ([]model.Flow, error) {
	flows, err := s.store.ListFlows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	if flows == nil {
		flows = []model.Flow{}
	}
	return flows, nil
}

// FlowNodes lists the nodes of a flow.
func (s *ConversationService) FlowNodes(ctx context.Context, flowID string) ([]model.Node, error) {
	nodes, err := s.store.ListNodes(ctx, flowID)
	if err != nil {
		return nil, notFound(err)
	}
	if nodes == nil {
		nodes = []model.Node{}
	}
	return nodes, nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
