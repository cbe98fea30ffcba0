package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/deskchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func guest(id string) domain.Identity {
	return domain.Identity{ParticipantID: id, DisplayName: "Guest " + id, Role: domain.RoleCustomer, Guest: true}
}

func msg(from, text string) domain.Message {
	return domain.Message{From: from, Role: domain.RoleCustomer, Text: text}
}

func TestResolveOrCreate_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Limits{})

	c1, err := s.ResolveOrCreate(ctx, guest("guest-42"))
	require.NoError(t, err)
	assert.Equal(t, "guest-42", c1.ID)
	assert.Equal(t, "guest-42", c1.CustomerParticipantID)
	assert.Equal(t, domain.StatusUnassigned, c1.Status)

	c2, err := s.ResolveOrCreate(ctx, guest("guest-42"))
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, c1.CreatedAt, c2.CreatedAt)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestResolveOrCreate_UpdatesName(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Limits{})

	_, err := s.ResolveOrCreate(ctx, domain.Identity{ParticipantID: "u1", DisplayName: "Old", Role: domain.RoleCustomer})
	require.NoError(t, err)
	c, err := s.ResolveOrCreate(ctx, domain.Identity{ParticipantID: "u1", DisplayName: "New", Role: domain.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, "New", c.CustomerName)
}

func TestAppend_SequenceNumbers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Limits{})
	_, err := s.ResolveOrCreate(ctx, guest("c1"))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		m, err := s.Append(ctx, "c1", msg("c1", fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		assert.Equal(t, int64(i), m.SequenceNumber)
		assert.Equal(t, "c1", m.ConversationID)
		assert.False(t, m.Timestamp.IsZero())
	}

	hist, err := s.History(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	for i, m := range hist {
		assert.Equal(t, int64(i+1), m.SequenceNumber)
		assert.Equal(t, fmt.Sprintf("m%d", i+1), m.Text)
	}

	c, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.MessageCount)
}

func TestAppend_KeepsClientTimestamp(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Limits{})
	_, err := s.ResolveOrCreate(ctx, guest("c1"))
	require.NoError(t, err)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := msg("c1", "hi")
	in.Timestamp = ts
	out, err := s.Append(ctx, "c1", in)
	require.NoError(t, err)
	assert.Equal(t, ts, out.Timestamp)
}

func TestUnknownConversation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Limits{})

	_, err := s.Append(ctx, "missing", msg("x", "hi"))
	assert.ErrorIs(t, err, domain.ErrUnknownConversation)
	_, err = s.History(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUnknownConversation)
	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUnknownConversation)
	_, err = s.Assign(ctx, "missing", "a1")
	assert.ErrorIs(t, err, domain.ErrUnknownConversation)
	_, err = s.MarkClosed(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUnknownConversation)
}

func TestHistory_ReadOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Limits{})
	_, err := s.ResolveOrCreate(ctx, guest("c1"))
	require.NoError(t, err)
	_, err = s.Append(ctx, "c1", msg("c1", "hello"))
	require.NoError(t, err)

	h1, err := s.History(ctx, "c1")
	require.NoError(t, err)
	h1[0].Text = "tampered"

	h2, err := s.History(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "hello", h2[0].Text)
}

func TestAssign_LastWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Limits{})
	_, err := s.ResolveOrCreate(ctx, guest("c1"))
	require.NoError(t, err)

	c, err := s.Assign(ctx, "c1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", c.LiveAssignee())

	c, err = s.Assign(ctx, "c1", "a2")
	require.NoError(t, err)
	assert.Equal(t, "a2", c.AssignedAgentID)
	assert.Equal(t, domain.StatusAssigned, c.Status)

	c, err = s.MarkClosed(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, c.Status)
	assert.Empty(t, c.LiveAssignee())

	// Closed conversations still accept appends.
	_, err = s.Append(ctx, "c1", msg("c1", "still here"))
	require.NoError(t, err)
}

func TestLimits(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Limits{MaxMessagesPerConversation: 2, MaxConversations: 1})

	_, err := s.ResolveOrCreate(ctx, guest("c1"))
	require.NoError(t, err)
	_, err = s.ResolveOrCreate(ctx, guest("c2"))
	assert.ErrorIs(t, err, domain.ErrStorageExhausted)

	for i := 0; i < 2; i++ {
		_, err := s.Append(ctx, "c1", msg("c1", "x"))
		require.NoError(t, err)
	}
	_, err = s.Append(ctx, "c1", msg("c1", "overflow"))
	assert.ErrorIs(t, err, domain.ErrStorageExhausted)

	hist, err := s.History(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

func TestConcurrentAppends_NoGaps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Limits{})
	for _, id := range []string{"c1", "c2"} {
		_, err := s.ResolveOrCreate(ctx, guest(id))
		require.NoError(t, err)
	}

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		for _, id := range []string{"c1", "c2"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := s.Append(ctx, id, msg(id, "m"))
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	for _, id := range []string{"c1", "c2"} {
		hist, err := s.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, hist, n)
		for i, m := range hist {
			assert.Equal(t, int64(i+1), m.SequenceNumber)
		}
	}
}

func TestList_MostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Limits{})

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := s.ResolveOrCreate(ctx, guest(id))
		require.NoError(t, err)
	}
	_, err := s.Append(ctx, "c1", msg("c1", "bump"))
	require.NoError(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c1", "c3", "c2"}, []string{all[0].ID, all[1].ID, all[2].ID})
}
