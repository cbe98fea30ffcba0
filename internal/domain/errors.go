package domain

import "errors"

var (
	// ErrNotRegistered is returned for chat traffic on a connection that has
	// not completed registration. Recoverable: the event is dropped.
	ErrNotRegistered = errors.New("connection not registered")

	// ErrUnknownConversation is returned when a target conversation does not
	// exist. Recoverable: nothing is appended.
	ErrUnknownConversation = errors.New("unknown conversation")

	// ErrStorageExhausted is returned when a conversation (or the store as a
	// whole) has reached its configured ceiling. Fatal for new appends to that
	// conversation only.
	ErrStorageExhausted = errors.New("conversation storage exhausted")

	// ErrUnsupportedRole is returned when a participant whose role cannot chat
	// sends a chat message.
	ErrUnsupportedRole = errors.New("role cannot send chat messages")
)
