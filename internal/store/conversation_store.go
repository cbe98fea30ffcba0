package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/deskchat/internal/conversation"
	"github.com/soyeahso/deskchat/internal/domain"
)

// timeLayout keeps sub-second precision so recency ordering survives a
// round trip through the database.
const timeLayout = time.RFC3339Nano

// ConversationStore implements conversation.Store on SQLite.
type ConversationStore struct {
	db     *DB
	limits conversation.Limits
	locks  conversation.Locks
	now    func() time.Time

	createMu sync.Mutex
}

// NewConversationStore creates a conversation store using the given database.
func NewConversationStore(db *DB, limits conversation.Limits) *ConversationStore {
	return &ConversationStore{db: db, limits: limits, now: time.Now}
}

var _ conversation.Store = (*ConversationStore)(nil)

const conversationColumns = `id, customer_id, customer_name, assigned_agent_id, status, message_count, created_at, updated_at`

func (s *ConversationStore) ResolveOrCreate(ctx context.Context, customer domain.Identity) (domain.Conversation, error) {
	id := domain.ConversationIDFor(customer.ParticipantID)
	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.Get(ctx, id)
	if err == nil {
		if customer.DisplayName != "" && customer.DisplayName != c.CustomerName {
			if _, err := s.db.sql.ExecContext(ctx,
				`UPDATE conversations SET customer_name = ? WHERE id = ?`,
				customer.DisplayName, id,
			); err != nil {
				return domain.Conversation{}, fmt.Errorf("renaming customer on %s: %w", id, err)
			}
			c.CustomerName = customer.DisplayName
		}
		return c, nil
	}
	if !errors.Is(err, domain.ErrUnknownConversation) {
		return domain.Conversation{}, err
	}

	// Creation is serialized store-wide so the conversation ceiling holds
	// across customers.
	s.createMu.Lock()
	defer s.createMu.Unlock()

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	if s.limits.MaxConversations > 0 {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
			return domain.Conversation{}, fmt.Errorf("counting conversations: %w", err)
		}
		if n >= s.limits.MaxConversations {
			return domain.Conversation{}, fmt.Errorf("creating conversation %s: %w", id, domain.ErrStorageExhausted)
		}
	}

	now := s.now()
	c = domain.Conversation{
		ID:                    id,
		CustomerParticipantID: customer.ParticipantID,
		CustomerName:          customer.DisplayName,
		Status:                domain.StatusUnassigned,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, customer_id, customer_name, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.CustomerParticipantID, c.CustomerName, string(c.Status),
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("creating conversation %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Conversation{}, fmt.Errorf("commit create: %w", err)
	}
	return c, nil
}

func (s *ConversationStore) Get(ctx context.Context, id string) (domain.Conversation, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, fmt.Errorf("conversation %s: %w", id, domain.ErrUnknownConversation)
	}
	return c, err
}

func (s *ConversationStore) Append(ctx context.Context, id string, msg domain.Message) (domain.Message, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var count int64
	err = tx.QueryRowContext(ctx, `SELECT message_count FROM conversations WHERE id = ?`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, fmt.Errorf("conversation %s: %w", id, domain.ErrUnknownConversation)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("reading message count: %w", err)
	}
	if s.limits.MaxMessagesPerConversation > 0 && count >= int64(s.limits.MaxMessagesPerConversation) {
		return domain.Message{}, fmt.Errorf("appending to %s: %w", id, domain.ErrStorageExhausted)
	}

	now := s.now()
	msg.ConversationID = id
	msg.SequenceNumber = count + 1
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, seq, from_id, from_name, to_id, role, text, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, msg.SequenceNumber, msg.From, msg.FromName, msg.To, string(msg.Role), msg.Text,
		msg.Timestamp.Format(timeLayout),
	); err != nil {
		return domain.Message{}, fmt.Errorf("inserting message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET message_count = ?, updated_at = ? WHERE id = ?`,
		msg.SequenceNumber, now.Format(timeLayout), id,
	); err != nil {
		return domain.Message{}, fmt.Errorf("updating conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Message{}, fmt.Errorf("commit append: %w", err)
	}
	return msg, nil
}

func (s *ConversationStore) History(ctx context.Context, id string) ([]domain.Message, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT conversation_id, seq, from_id, from_name, to_id, role, text, timestamp
		 FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *ConversationStore) Assign(ctx context.Context, id, agentID string) (domain.Conversation, error) {
	return s.update(ctx, id,
		`UPDATE conversations SET assigned_agent_id = ?, status = ?, updated_at = ? WHERE id = ?`,
		agentID, string(domain.StatusAssigned), s.now().Format(timeLayout), id)
}

func (s *ConversationStore) MarkClosed(ctx context.Context, id string) (domain.Conversation, error) {
	return s.update(ctx, id,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
		string(domain.StatusClosed), s.now().Format(timeLayout), id)
}

func (s *ConversationStore) update(ctx context.Context, id, query string, args ...any) (domain.Conversation, error) {
	res, err := s.db.sql.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("updating conversation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Conversation{}, fmt.Errorf("conversation %s: %w", id, domain.ErrUnknownConversation)
	}
	return s.Get(ctx, id)
}

func (s *ConversationStore) List(ctx context.Context) ([]domain.Conversation, error) {
	rows, err := s.db.sql.QueryContext(ctx, `SELECT `+conversationColumns+` FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	conversation.SortByRecent(out)
	return out, nil
}

// Search runs a full-text query over message text, best match first.
// A limit of 0 defaults to 20.
func (s *ConversationStore) Search(ctx context.Context, query string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT m.conversation_id, m.seq, m.from_id, m.from_name, m.to_id, m.role, m.text, m.timestamp
		 FROM messages_fts
		 JOIN messages m ON m.rowid = messages_fts.rowid
		 WHERE messages_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (domain.Conversation, error) {
	var c domain.Conversation
	var status, createdAt, updatedAt string
	if err := row.Scan(
		&c.ID, &c.CustomerParticipantID, &c.CustomerName, &c.AssignedAgentID,
		&status, &c.MessageCount, &createdAt, &updatedAt,
	); err != nil {
		return domain.Conversation{}, err
	}
	c.Status = domain.ConversationStatus(status)
	var err error
	if c.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return domain.Conversation{}, fmt.Errorf("scanning conversation %s created_at: %w", c.ID, err)
	}
	if c.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return domain.Conversation{}, fmt.Errorf("scanning conversation %s updated_at: %w", c.ID, err)
	}
	return c, nil
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	msgs := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var role, ts string
		if err := rows.Scan(
			&m.ConversationID, &m.SequenceNumber, &m.From, &m.FromName, &m.To, &role, &m.Text, &ts,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = domain.Role(role)
		at, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("scanning message %s#%d timestamp: %w", m.ConversationID, m.SequenceNumber, err)
		}
		m.Timestamp = at
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
