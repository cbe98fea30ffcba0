package gateway

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/soyeahso/deskchat/internal/domain"
	"github.com/soyeahso/deskchat/internal/presence"
	"github.com/soyeahso/deskchat/internal/routing"
)

// FrameTypeEvent is the only frame type on the chat socket. Both directions
// send events.
const FrameTypeEvent = "event"

// ProtocolVersion supported by this server.
const ProtocolVersion = 1

// Inbound event kinds.
const (
	EventRegister          = "register"
	EventChatMessage       = "chat_message"
	EventSelectUser        = "select_user"
	EventCloseConversation = "close_conversation"
	EventListConversations = "list_conversations"
)

// Outbound event kinds. EventChatMessage is used in both directions.
const (
	EventHello                   = "hello"
	EventRegistered              = "registered"
	EventSuperseded              = "superseded"
	EventParticipantConnected    = "participant_connected"
	EventParticipantDisconnected = "participant_disconnected"
	EventPresenceSnapshot        = "presence_snapshot"
	EventChatHistory             = "chat_history"
	EventConversationList        = "conversation_list"
	EventError                   = "error"
)

// Frame is the envelope for every WebSocket message.
type Frame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Seq     int64           `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorShape is the payload of an error event.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes sent to clients.
const (
	CodeInvalidPayload     = "invalid_payload"
	CodeUnauthorized       = "unauthorized"
	CodeTokenExpired       = "token_expired"
	CodeGuestsDisabled     = "guests_disabled"
	CodeAgentTokenRequired = "agent_token_required"
	CodeInternal           = "internal_error"
)

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: raw,
		Seq:     seq,
	}, nil
}

var validate = validator.New()

// decodePayload unmarshals and validates an inbound payload.
func decodePayload(raw json.RawMessage, target any) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return err
		}
	}
	return validate.Struct(target)
}

// Client → server payloads.

type registerPayload struct {
	ParticipantID string `json:"participantId" validate:"omitempty,max=128,printascii"`
	DisplayName   string `json:"displayName" validate:"max=100"`
	Role          string `json:"role" validate:"max=32"`
	Token         string `json:"token" validate:"omitempty,jwt"`
}

type chatPayload struct {
	To   string `json:"to" validate:"omitempty,max=128"`
	Text string `json:"text" validate:"required,max=4000"`
}

type conversationPayload struct {
	ConversationID string `json:"conversationId" validate:"required,max=128"`
}

// Server → client payloads.

// HelloPayload is sent once when a socket is accepted.
type HelloPayload struct {
	ConnID     domain.Handle `json:"connId"`
	Protocol   int           `json:"protocol"`
	Server     string        `json:"server"`
	MaxPayload int64         `json:"maxPayload"`
}

// RegisteredPayload acknowledges a register event.
type RegisteredPayload struct {
	ParticipantID  string      `json:"participantId"`
	DisplayName    string      `json:"displayName"`
	Role           domain.Role `json:"role"`
	ConversationID string      `json:"conversationId,omitempty"`
	Guest          bool        `json:"guest"`
}

// SupersededPayload tells a connection its participant registered elsewhere.
type SupersededPayload struct {
	ParticipantID string `json:"participantId"`
}

// DisconnectedPayload is the participant_disconnected payload.
type DisconnectedPayload struct {
	ParticipantID string `json:"participantId"`
}

// SnapshotPayload is the presence_snapshot payload.
type SnapshotPayload struct {
	LiveCustomers []presence.Entry `json:"liveCustomers"`
}

// HistoryPayload is the chat_history payload.
type HistoryPayload struct {
	ConversationID string           `json:"conversationId"`
	Messages       []domain.Message `json:"messages"`
}

// ConversationListPayload is the conversation_list payload.
type ConversationListPayload struct {
	Conversations []routing.Summary `json:"conversations"`
}
