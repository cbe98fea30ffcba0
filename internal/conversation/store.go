// Package conversation defines the Conversation Store contract and an
// in-memory implementation.
package conversation

import (
	"context"

	"github.com/soyeahso/deskchat/internal/domain"
)

// Store is the append-only conversation log. Implementations serialize
// appends per conversation so sequence numbers never race, and return
// domain.ErrUnknownConversation for ids they have never created.
type Store interface {
	// ResolveOrCreate returns the conversation owned by the customer, creating
	// an empty unassigned one on first use. It is the sole creation path.
	ResolveOrCreate(ctx context.Context, customer domain.Identity) (domain.Conversation, error)

	// Get returns conversation metadata.
	Get(ctx context.Context, id string) (domain.Conversation, error)

	// Append stores msg with the next sequence number and returns the stored
	// message. Fails with domain.ErrStorageExhausted at the per-conversation
	// ceiling.
	Append(ctx context.Context, id string, msg domain.Message) (domain.Message, error)

	// History returns every message, oldest first.
	History(ctx context.Context, id string) ([]domain.Message, error)

	// Assign points the conversation at agentID and marks it assigned,
	// replacing any previous assignee.
	Assign(ctx context.Context, id, agentID string) (domain.Conversation, error)

	// MarkClosed moves the conversation to the closed state.
	MarkClosed(ctx context.Context, id string) (domain.Conversation, error)

	// List returns all conversations, most recently updated first.
	List(ctx context.Context) ([]domain.Conversation, error)
}

// Limits bounds store growth. Zero means unlimited.
type Limits struct {
	MaxMessagesPerConversation int
	MaxConversations           int
}
