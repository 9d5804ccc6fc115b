// Package store persists contacts, conversations, messages and flows.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ContactRepository upserts contact identities.
type ContactRepository interface {
	// UpsertContact creates the contact or refreshes it. Empty profile fields never
	// clear stored values; the last interaction time is always updated.
	UpsertContact(ctx context.Context, profile model.ContactProfile, at time.Time) (*model.Contact, error)
}

// ConversationRepository manages conversations and their bot state.
type ConversationRepository interface {
	// OpenConversation returns the contact's open conversation, creating it if needed.
	OpenConversation(ctx context.Context, contactID string) (*model.Conversation, error)
	// GetConversation returns a conversation with its contact populated.
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, limit, offset int) ([]model.ConversationSummary, int, error)
	SetBotEnabled(ctx context.Context, id string, enabled bool) (*model.Conversation, error)
	// SaveBotState replaces the conversation's bot fields in one write.
	SaveBotState(ctx context.Context, id string, state model.BotState) error
}

// MessageRepository persists messages.
type MessageRepository interface {
	// CreateMessage inserts msg. When msg carries a provider message id that is
	// already stored, the existing record is returned and created is false.
	CreateMessage(ctx context.Context, msg *model.Message) (stored *model.Message, created bool, err error)
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
	// MarkRead flips received messages of a conversation to read.
	MarkRead(ctx context.Context, conversationID string) (int64, error)
}

// FlowRepository reads authored flows. Flows are read-only to the gateway.
type FlowRepository interface {
	// FirstActiveFlow returns the oldest active flow or ErrNotFound.
	FirstActiveFlow(ctx context.Context) (*model.Flow, error)
	GetFlow(ctx context.Context, id string) (*model.Flow, error)
	ListFlows(ctx context.Context) ([]model.Flow, error)
	ListNodes(ctx context.Context, flowID string) ([]model.Node, error)
}

// FlowWriter replaces a flow and its nodes. It is used to seed authored flows.
type FlowWriter interface {
	SaveFlow(ctx context.Context, flow model.Flow, nodes []model.Node) error
}

// Store is the full record store.
type Store interface {
	ContactRepository
	ConversationRepository
	MessageRepository
	FlowRepository
	FlowWriter

	Ping(ctx context.Context) error
	Close() error
}
