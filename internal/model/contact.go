// Package model defines data structures for the messaging gateway.
package model

import (
	"time"
)

// Contact is an external chat identity (a WhatsApp account).
type Contact struct {
	ID                string    `json:"id"`
	WhatsAppID        string    `json:"whatsapp_id"`
	Name              string    `json:"name,omitempty"`
	AvatarURL         string    `json:"avatar_url,omitempty"`
	LastInteractionAt time.Time `json:"last_interaction_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DisplayName returns the name shown in conversation summaries.
func (c *Contact) DisplayName() string {
	if c == nil || c.Name == "" {
		return "Desconocido"
	}
	return c.Name
}

// ContactProfile is what the provider tells us about a contact on an inbound message.
// Empty fields never overwrite stored values.
type ContactProfile struct {
	WhatsAppID string
	Name       string
	AvatarURL  string
}
