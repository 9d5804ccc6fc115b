package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
)

// Memory is an in-process Store. It backs development runs and tests.
type Memory struct {
	mu sync.RWMutex

	contacts       map[string]*model.Contact
	contactsByWaID map[string]string
	conversations  map[string]*model.Conversation
	openByContact  map[string]string
	messages       map[string]*model.Message
	messageOrder   []string
	byProviderID   map[string]string
	flows          map[string]*model.Flow
	flowOrder      []string
	nodes          map[string][]model.Node
	now            func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		contacts:       make(map[string]*model.Contact),
		contactsByWaID: make(map[string]string),
		conversations:  make(map[string]*model.Conversation),
		openByContact:  make(map[string]string),
		messages:       make(map[string]*model.Message),
		byProviderID:   make(map[string]string),
		flows:          make(map[string]*model.Flow),
		nodes:          make(map[string][]model.Node),
		now:            time.Now,
	}
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// UpsertContact implements ContactRepository.
func (s *Memory) UpsertContact(ctx context.Context, profile model.ContactProfile, at time.Time) (*model.Contact, error) {
	if profile.WhatsAppID == "" {
		return nil, fmt.Errorf("whatsapp id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.contactsByWaID[profile.WhatsAppID]; ok {
		c := s.contacts[id]
		if profile.Name != "" {
			c.Name = profile.Name
		}
		if profile.AvatarURL != "" {
			c.AvatarURL = profile.AvatarURL
		}
		c.LastInteractionAt = at
		c.UpdatedAt = at
		cp := *c
		return &cp, nil
	}

	c := &model.Contact{
		ID:                newID(),
		WhatsAppID:        profile.WhatsAppID,
		Name:              profile.Name,
		AvatarURL:         profile.AvatarURL,
		LastInteractionAt: at,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
	s.contacts[c.ID] = c
	s.contactsByWaID[c.WhatsAppID] = c.ID
	cp := *c
	return &cp, nil
}

// OpenConversation implements ConversationRepository.
func (s *Memory) OpenConversation(ctx context.Context, contactID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contact, ok := s.contacts[contactID]
	if !ok {
		return nil, ErrNotFound
	}

	if id, ok := s.openByContact[contactID]; ok {
		return s.conversationCopy(s.conversations[id]), nil
	}

	now := s.now()
	conv := &model.Conversation{
		ID:        newID(),
		ContactID: contact.ID,
		Status:    model.ConversationOpen,
		Bot:       model.BotState{Enabled: true, Vars: map[string]string{}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv
	s.openByContact[contactID] = conv.ID
	return s.conversationCopy(conv), nil
}

// GetConversation implements ConversationRepository.
func (s *Memory) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.conversationCopy(conv), nil
}

// ListConversations implements ConversationRepository. Conversations are ordered by
// most recent activity.
func (s *Memory) ListConversations(ctx context.Context, limit, offset int) ([]model.ConversationSummary, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make(map[string]*model.ConversationSummary, len(s.conversations))
	for _, conv := range s.conversations {
		contact := s.contacts[conv.ContactID]
		summaries[conv.ID] = &model.ConversationSummary{
			ID:         conv.ID,
			ContactID:  conv.ContactID,
			Name:       displayName(contact),
			AvatarURL:  contact.AvatarURL,
			BotEnabled: conv.Bot.Enabled,
		}
	}
	for _, id := range s.messageOrder {
		msg := s.messages[id]
		sum := summaries[msg.ConversationID]
		if sum == nil {
			continue
		}
		at := msg.CreatedAt
		sum.LastMessage = msg.Preview()
		sum.LastMessageAt = &at
		if msg.Status == model.StatusReceived {
			sum.UnreadCount++
		}
	}

	out := make([]model.ConversationSummary, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, *sum)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return activity(out[i], s.conversations[out[i].ID]).After(activity(out[j], s.conversations[out[j].ID]))
	})

	total := len(out)
	return paginate(out, limit, offset), total, nil
}

// SetBotEnabled implements ConversationRepository.
func (s *Memory) SetBotEnabled(ctx context.Context, id string, enabled bool) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	conv.Bot.Enabled = enabled
	conv.UpdatedAt = s.now()
	return s.conversationCopy(conv), nil
}

// SaveBotState implements ConversationRepository.
func (s *Memory) SaveBotState(ctx context.Context, id string, state model.BotState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.Bot = state.Clone()
	conv.UpdatedAt = s.now()
	return nil
}

// CreateMessage implements MessageRepository.
func (s *Memory) CreateMessage(ctx context.Context, msg *model.Message) (*model.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return nil, false, ErrNotFound
	}

	if msg.ProviderMessageID != nil && *msg.ProviderMessageID != "" {
		if id, ok := s.byProviderID[*msg.ProviderMessageID]; ok {
			return copyMessage(s.messages[id]), false, nil
		}
	}

	stored := copyMessage(msg)
	if stored.ID == "" {
		stored.ID = newID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.messages[stored.ID] = stored
	s.messageOrder = append(s.messageOrder, stored.ID)
	if stored.ProviderMessageID != nil && *stored.ProviderMessageID != "" {
		s.byProviderID[*stored.ProviderMessageID] = stored.ID
	}
	return copyMessage(stored), true, nil
}

// ListMessages implements MessageRepository.
func (s *Memory) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Message
	for _, id := range s.messageOrder {
		msg := s.messages[id]
		if msg.ConversationID == conversationID {
			out = append(out, *copyMessage(msg))
		}
	}
	return paginate(out, limit, offset), nil
}

// MarkRead implements MessageRepository.
func (s *Memory) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID && msg.Status == model.StatusReceived {
			msg.Status = model.StatusRead
			n++
		}
	}
	return n, nil
}

// SaveFlow implements FlowWriter.
func (s *Memory) SaveFlow(ctx context.Context, flow model.Flow, nodes []model.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = s.now()
	}
	if _, exists := s.flows[flow.ID]; !exists {
		s.flowOrder = append(s.flowOrder, flow.ID)
	}
	s.flows[flow.ID] = &flow
	s.nodes[flow.ID] = append([]model.Node(nil), nodes...)
	return nil
}

// FirstActiveFlow implements FlowRepository.
func (s *Memory) FirstActiveFlow(ctx context.Context) (*model.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.flowOrder {
		if f := s.flows[id]; f.Active {
			cp := *f
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// GetFlow implements FlowRepository.
func (s *Memory) GetFlow(ctx context.Context, id string) (*model.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

// ListFlows implements FlowRepository.
func (s *Memory) ListFlows(ctx context.Context) ([]model.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Flow, 0, len(s.flowOrder))
	for _, id := range s.flowOrder {
		out = append(out, *s.flows[id])
	}
	return out, nil
}

// ListNodes implements FlowRepository.
func (s *Memory) ListNodes(ctx context.Context, flowID string) ([]model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.flows[flowID]; !ok {
		return nil, ErrNotFound
	}
	return append([]model.Node(nil), s.nodes[flowID]...), nil
}

// Ping implements Store.
func (s *Memory) Ping(ctx context.Context) error { return nil }

// Close implements Store.
func (s *Memory) Close() error { return nil }

func (s *Memory) conversationCopy(conv *model.Conversation) *model.Conversation {
	cp := *conv
	cp.Bot = conv.Bot.Clone()
	if contact, ok := s.contacts[conv.ContactID]; ok {
		c := *contact
		cp.Contact = &c
	}
	return &cp
}

func copyMessage(m *model.Message) *model.Message {
	cp := *m
	return &cp
}

func displayName(c *model.Contact) string {
	if c == nil {
		return "Desconocido"
	}
	if c.Name != "" {
		return c.Name
	}
	return c.WhatsAppID
}

func activity(sum model.ConversationSummary, conv *model.Conversation) time.Time {
	if sum.LastMessageAt != nil {
		return *sum.LastMessageAt
	}
	return conv.UpdatedAt
}

func paginate[T any](items []T, limit, offset int) []T {
	total := len(items)
	start := offset
	if start > total {
		start = total
	}
	end := total
	if limit > 0 && start+limit < total {
		end = start + limit
	}
	return items[start:end]
}
