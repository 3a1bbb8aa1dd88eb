package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateConversationID validates a conversation ID path parameter.
// Conversation IDs are provider-derived opaque strings, not UUIDs.
func ValidateConversationID(id string) error {
	if id == "" {
		return errors.New("conversation ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("conversation ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("conversation ID must be valid UTF-8")
	}
	return nil
}

// ValidatePayloadID validates a webhook payload identifier.
func ValidatePayloadID(id string) error {
	if id == "" {
		return errors.New("payload _id cannot be empty")
	}
	if len(id) > 256 {
		return errors.New("payload _id exceeds maximum length")
	}
	return nil
}
