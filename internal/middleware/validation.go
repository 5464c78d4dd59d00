package middleware

import (
	"errors"
	"net/mail"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateMessageBody validates message body text.
func ValidateMessageBody(body string) error {
	if len(body) == 0 {
		return errors.New("message body cannot be empty")
	}
	if len(body) > 100000 { // ~100KB limit
		return errors.New("message body exceeds maximum length")
	}
	if !utf8.ValidString(body) {
		return errors.New("message body must be valid UTF-8")
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

// ValidateMessageID validates a message ID.
func ValidateMessageID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid message ID format")
	}
	return nil
}

// ValidateEmail validates a user email address.
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email cannot be empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email address")
	}
	return nil
}

// ValidateConversationName validates a group conversation name.
func ValidateConversationName(name string) error {
	if len(name) > 256 {
		return errors.New("conversation name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("conversation name must be valid UTF-8")
	}
	return nil
}
