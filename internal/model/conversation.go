package model

import (
	"time"
)

// ConversationStatus is the lifecycle status of a conversation.
type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

// BotState is the flow engine's per-conversation state. It is read and written as a
// single unit.
type BotState struct {
	Enabled bool              `json:"bot_enabled"`
	FlowID  string            `json:"active_flow_id,omitempty"`
	NodeID  string            `json:"active_node_id,omitempty"`
	Vars    map[string]string `json:"bot_state"`
}

// HasPointer reports whether the conversation points at a flow node.
func (s BotState) HasPointer() bool {
	return s.FlowID != "" && s.NodeID != ""
}

// Clone returns a deep copy so transitions never alias the caller's map.
func (s BotState) Clone() BotState {
	vars := make(map[string]string, len(s.Vars))
	for k, v := range s.Vars {
		vars[k] = v
	}
	s.Vars = vars
	return s
}

// Equal reports whether two states are identical.
func (s BotState) Equal(o BotState) bool {
	if s.Enabled != o.Enabled || s.FlowID != o.FlowID || s.NodeID != o.NodeID {
		return false
	}
	if len(s.Vars) != len(o.Vars) {
		return false
	}
	for k, v := range s.Vars {
		if ov, ok := o.Vars[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Conversation is the exchange between one contact and the system.
type Conversation struct {
	ID        string             `json:"id"`
	ContactID string             `json:"contact_id"`
	Status    ConversationStatus `json:"status"`
	Bot       BotState           `json:"bot"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`

	// Populated on read.
	Contact *Contact `json:"contact,omitempty"`
}

// ConversationSummary is a row of the operator's conversation list.
type ConversationSummary struct {
	ID            string     `json:"id"`
	ContactID     string     `json:"contact_id"`
	Name          string     `json:"name"`
	AvatarURL     string     `json:"avatar_url,omitempty"`
	BotEnabled    bool       `json:"bot_enabled"`
	LastMessage   string     `json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int        `json:"unread"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
	HasMore       bool                  `json:"has_more"`
}

// UpdateBotRequest toggles automated handling for a conversation.
type UpdateBotRequest struct {
	BotEnabled *bool `json:"bot_enabled"`
}
