package model

import (
	"time"
)

// Sender is who authored a message from the inbox's point of view. Bot replies are
// recorded as operator messages.
type Sender string

const (
	SenderOperator Sender = "operator"
	SenderContact  Sender = "contact"
)

// MessageKind is the canonical content kind of a stored message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindVideo    MessageKind = "video"
	KindAudio    MessageKind = "audio"
	KindDocument MessageKind = "document"
)

// MessageStatus is the delivery status of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
	StatusReceived  MessageStatus = "received"
)

// Message is a single message of a conversation.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Sender         Sender        `json:"sender"`
	Kind           MessageKind   `json:"kind"`
	Body           *string       `json:"body"`
	MediaURL       *string       `json:"media_url"`
	MediaName      *string       `json:"media_name"`
	Status         MessageStatus `json:"status"`

	// ProviderMessageID is nil for messages created locally before the provider acked them.
	ProviderMessageID *string `json:"provider_message_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BodyText returns the body or an empty string.
func (m *Message) BodyText() string {
	if m.Body == nil {
		return ""
	}
	return *m.Body
}

// Preview returns the text shown in conversation summaries.
func (m *Message) Preview() string {
	return Preview(m.Kind, m.BodyText())
}

// Preview derives the summary text for a message of the given kind.
func Preview(kind MessageKind, body string) string {
	if kind == KindText {
		return body
	}
	var prefix string
	switch kind {
	case KindImage:
		prefix = "[Imagen]"
	case KindVideo:
		prefix = "[Video]"
	case KindAudio:
		prefix = "[Audio]"
	case KindDocument:
		prefix = "[Documento]"
	default:
		prefix = "[Mensaje]"
	}
	if body == "" {
		return prefix
	}
	return prefix + " " + body
}

// StringPtr returns nil for empty strings and a pointer otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SendMessageRequest is an operator-initiated text send.
type SendMessageRequest struct {
	Body string `json:"body"`
}

// SendMessageResponse is the response after an operator send.
type SendMessageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Body           string    `json:"body"`
	Timestamp      time.Time `json:"timestamp"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}
