package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageBody is the longest text an operator may send. The provider caps
// text messages at 4096 characters.
const MaxMessageBody = 4096

// ValidateMessageBody validates an operator message body.
func ValidateMessageBody(body string) error {
	if len(body) == 0 {
		return errors.New("body cannot be empty")
	}
	if !utf8.ValidString(body) {
		return errors.New("body must be valid UTF-8")
	}
	if utf8.RuneCountInString(body) > MaxMessageBody {
		return errors.New("body exceeds maximum length")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateFlowID validates a flow ID.
func ValidateFlowID(id string) error {
	if len(id) == 0 {
		return errors.New("flow ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("flow ID exceeds maximum length")
	}
	return nil
}
