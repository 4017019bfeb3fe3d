package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxChatMessageLength = 1000

// ValidateChatMessage validates an inbound chat message.
func ValidateChatMessage(message string) error {
	if len(message) == 0 {
		return errors.New("message cannot be empty")
	}
	if len(message) > maxChatMessageLength {
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(message) {
		return errors.New("message must be valid UTF-8")
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

// ValidateEnvironmentID validates an environment ID. Ids become document
// path segments, so the charset is restricted.
func ValidateEnvironmentID(id string) error {
	if len(id) == 0 {
		return errors.New("environment ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("environment ID exceeds maximum length")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return errors.New("environment ID contains invalid characters")
		}
	}
	return nil
}
