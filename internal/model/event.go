package model

import (
	"time"
)

// SummaryEvent is broadcast on the conversation-summary channel.
type SummaryEvent struct {
	ConversationID     string    `json:"conversation_id"`
	Name               string    `json:"name"`
	LastMessagePreview string    `json:"last_message_preview"`
	Timestamp          time.Time `json:"timestamp"`
}

// MessageEvent is broadcast on the per-conversation channel.
type MessageEvent struct {
	ConversationID string        `json:"conversation_id"`
	MessageID      string        `json:"message_id"`
	Sender         Sender        `json:"sender"`
	Body           *string       `json:"body"`
	Kind           MessageKind   `json:"kind"`
	MediaURL       *string       `json:"media_url"`
	MediaName      *string       `json:"media_name"`
	Status         MessageStatus `json:"status"`
	Timestamp      time.Time     `json:"timestamp"`
}

// NewMessageEvent builds the per-conversation event for a stored message.
func NewMessageEvent(msg *Message) MessageEvent {
	return MessageEvent{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Sender:         msg.Sender,
		Body:           msg.Body,
		Kind:           msg.Kind,
		MediaURL:       msg.MediaURL,
		MediaName:      msg.MediaName,
		Status:         msg.Status,
		Timestamp:      msg.CreatedAt,
	}
}
