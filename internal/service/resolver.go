package service

import (
	"context"
	"fmt"
	"time"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
	"github.com/capitalize-ai/messaging-gateway/internal/store"
)

// Resolver maps a provider identity to its contact and open conversation.
type Resolver struct {
	contacts      store.ContactRepository
	conversations store.ConversationRepository
}

// NewResolver creates a resolver.
func NewResolver(contacts store.ContactRepository, conversations store.ConversationRepository) *Resolver {
	return &Resolver{contacts: contacts, conversations: conversations}
}

// Resolve upserts the contact and returns its open conversation with the contact
// populated.
func (r *Resolver) Resolve(ctx context.Context, profile model.ContactProfile, at time.Time) (*model.Conversation, error) {
	contact, err := r.contacts.UpsertContact(ctx, profile, at)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert contact: %w", err)
	}
	conv, err := r.conversations.OpenConversation(ctx, contact.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation: %w", err)
	}
	conv.Contact = contact
	return conv, nil
}
