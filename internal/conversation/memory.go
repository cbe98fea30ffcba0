package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/deskchat/internal/domain"
)

type thread struct {
	mu   sync.Mutex
	conv domain.Conversation
	msgs []domain.Message
}

// MemoryStore keeps conversations in process memory. History lasts for the
// lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*thread
	limits  Limits
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(limits Limits) *MemoryStore {
	return &MemoryStore{
		threads: make(map[string]*thread),
		limits:  limits,
		now:     time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) ResolveOrCreate(_ context.Context, customer domain.Identity) (domain.Conversation, error) {
	id := domain.ConversationIDFor(customer.ParticipantID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.threads[id]; ok {
		t.mu.Lock()
		defer t.mu.Unlock()
		if customer.DisplayName != "" {
			t.conv.CustomerName = customer.DisplayName
		}
		return t.conv, nil
	}

	if s.limits.MaxConversations > 0 && len(s.threads) >= s.limits.MaxConversations {
		return domain.Conversation{}, fmt.Errorf("creating conversation %s: %w", id, domain.ErrStorageExhausted)
	}

	now := s.now()
	t := &thread{conv: domain.Conversation{
		ID:                    id,
		CustomerParticipantID: customer.ParticipantID,
		CustomerName:          customer.DisplayName,
		Status:                domain.StatusUnassigned,
		CreatedAt:             now,
		UpdatedAt:             now,
	}}
	s.threads[id] = t
	return t.conv, nil
}

func (s *MemoryStore) thread(id string) (*thread, error) {
	s.mu.RLock()
	t, ok := s.threads[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrUnknownConversation)
	}
	return t, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (domain.Conversation, error) {
	t, err := s.thread(id)
	if err != nil {
		return domain.Conversation{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conv, nil
}

func (s *MemoryStore) Append(_ context.Context, id string, msg domain.Message) (domain.Message, error) {
	t, err := s.thread(id)
	if err != nil {
		return domain.Message{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if s.limits.MaxMessagesPerConversation > 0 && len(t.msgs) >= s.limits.MaxMessagesPerConversation {
		return domain.Message{}, fmt.Errorf("appending to %s: %w", id, domain.ErrStorageExhausted)
	}

	now := s.now()
	msg.ConversationID = id
	msg.SequenceNumber = int64(len(t.msgs)) + 1
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	t.msgs = append(t.msgs, msg)
	t.conv.MessageCount = msg.SequenceNumber
	t.conv.UpdatedAt = now
	return msg, nil
}

func (s *MemoryStore) History(_ context.Context, id string) ([]domain.Message, error) {
	t, err := s.thread(id)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.msgs))
	copy(out, t.msgs)
	return out, nil
}

func (s *MemoryStore) Assign(_ context.Context, id, agentID string) (domain.Conversation, error) {
	return s.update(id, func(c *domain.Conversation) {
		c.AssignedAgentID = agentID
		c.Status = domain.StatusAssigned
	})
}

func (s *MemoryStore) MarkClosed(_ context.Context, id string) (domain.Conversation, error) {
	return s.update(id, func(c *domain.Conversation) {
		c.Status = domain.StatusClosed
	})
}

func (s *MemoryStore) update(id string, fn func(*domain.Conversation)) (domain.Conversation, error) {
	t, err := s.thread(id)
	if err != nil {
		return domain.Conversation{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.conv)
	t.conv.UpdatedAt = s.now()
	return t.conv, nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.Conversation, error) {
	s.mu.RLock()
	threads := make([]*thread, 0, len(s.threads))
	for _, t := range s.threads {
		threads = append(threads, t)
	}
	s.mu.RUnlock()

	out := make([]domain.Conversation, 0, len(threads))
	for _, t := range threads {
		t.mu.Lock()
		out = append(out, t.conv)
		t.mu.Unlock()
	}
	SortByRecent(out)
	return out, nil
}

// SortByRecent orders conversations most recently updated first, breaking
// ties by id.
func SortByRecent(convs []domain.Conversation) {
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
}
