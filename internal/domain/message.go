package domain

import "time"

// Message is one immutable entry in a conversation log.
// SequenceNumber is assigned by the conversation store at append time and is
// the ordering authority; Timestamp is informational.
type Message struct {
	ConversationID string    `json:"conversationId"`
	From           string    `json:"from"`
	FromName       string    `json:"fromName,omitempty"`
	To             string    `json:"to,omitempty"`
	Role           Role      `json:"role"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	SequenceNumber int64     `json:"sequenceNumber"`
}
