package domain

import "time"

// ConversationStatus is the routing state of a conversation.
type ConversationStatus string

const (
	StatusUnassigned ConversationStatus = "unassigned"
	StatusAssigned   ConversationStatus = "assigned"
	StatusClosed     ConversationStatus = "closed"
)

// Conversation is the support-desk thread for one customer participant.
// Messages are held by the store and returned through History; this value
// carries only metadata.
type Conversation struct {
	ID                    string             `json:"conversationId"`
	CustomerParticipantID string             `json:"customerParticipantId"`
	CustomerName          string             `json:"customerName,omitempty"`
	AssignedAgentID       string             `json:"assignedAgentId,omitempty"`
	Status                ConversationStatus `json:"status"`
	MessageCount          int64              `json:"messageCount"`
	CreatedAt             time.Time          `json:"createdAt"`
	UpdatedAt             time.Time          `json:"updatedAt"`
}

// ConversationIDFor returns the conversation id owned by a customer.
// Reconnecting with the same participant id resumes the same conversation.
func ConversationIDFor(customerParticipantID string) string {
	return customerParticipantID
}

// LiveAssignee returns the assigned agent id when the conversation is in the
// Assigned state, or "" otherwise.
func (c Conversation) LiveAssignee() string {
	if c.Status != StatusAssigned {
		return ""
	}
	return c.AssignedAgentID
}
