// Package routing decides, for each inbound chat message, which conversation
// log it is appended to and which connections receive it live.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/soyeahso/deskchat/internal/conversation"
	"github.com/soyeahso/deskchat/internal/domain"
	"github.com/soyeahso/deskchat/internal/hooks"
	"github.com/soyeahso/deskchat/internal/logging"
	"github.com/soyeahso/deskchat/internal/metrics"
)

// Outcome classifies the live-delivery decision for one message.
type Outcome string

const (
	// OutcomeDirect: customer message delivered only to the assigned live agent.
	OutcomeDirect Outcome = metrics.OutcomeDirect
	// OutcomeBroadcast: customer message delivered to every live agent.
	OutcomeBroadcast Outcome = metrics.OutcomeBroadcast
	// OutcomeStoredOnly: appended with no live recipient.
	OutcomeStoredOnly Outcome = metrics.OutcomeStoredOnly
	// OutcomeToCustomer: agent message delivered to the live customer.
	OutcomeToCustomer Outcome = metrics.OutcomeToCustomer
)

// Directory is the view of live agents the router consults.
type Directory interface {
	AgentHandles() []domain.Handle
	AgentHandle(agentID string) (domain.Handle, bool)
}

// Connections resolves a participant to its live connection.
type Connections interface {
	LookupByParticipant(participantID string) (domain.Handle, bool)
}

// Deliverer sends routed output to connections. Implementations must not
// block; the router calls them while holding the conversation lock.
type Deliverer interface {
	DeliverMessage(to []domain.Handle, msg domain.Message)
	DeliverHistory(to domain.Handle, conversationID string, msgs []domain.Message)
}

// Inbound is a chat message as received from a connection.
type Inbound struct {
	// To is the target conversation. Required for agents, ignored for customers.
	To        string
	Text      string
	Timestamp time.Time
}

// Result describes what Route did with a message.
type Result struct {
	Message    domain.Message
	Outcome    Outcome
	Recipients []domain.Handle
}

// Summary is a conversation plus whether its customer is online.
type Summary struct {
	domain.Conversation
	Online bool `json:"online"`
}

// Router is the Message Router.
type Router struct {
	store conversation.Store
	conns Connections
	dir   Directory
	out   Deliverer
	hooks *hooks.Manager
	locks conversation.Locks
	log   *logging.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithHooks emits conversation and message events on hm.
func WithHooks(hm *hooks.Manager) Option {
	return func(r *Router) { r.hooks = hm }
}

// New creates a router.
func New(store conversation.Store, conns Connections, dir Directory, out Deliverer, log *logging.Logger, opts ...Option) *Router {
	r := &Router{
		store: store,
		conns: conns,
		dir:   dir,
		out:   out,
		log:   log.Sub("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route appends an inbound chat message and delivers it live according to
// the sender's role. The append and the delivery decision happen under the
// conversation lock, so live delivery follows sequence order.
func (r *Router) Route(ctx context.Context, from domain.Identity, in Inbound) (Result, error) {
	switch from.Role {
	case domain.RoleCustomer:
		return r.routeFromCustomer(ctx, from, in)
	case domain.RoleAgent:
		return r.routeFromAgent(ctx, from, in)
	case domain.RoleOther:
		return Result{}, domain.ErrUnsupportedRole
	}
	return Result{}, fmt.Errorf("role %q: %w", from.Role, domain.ErrUnsupportedRole)
}

func (r *Router) routeFromCustomer(ctx context.Context, from domain.Identity, in Inbound) (Result, error) {
	id := domain.ConversationIDFor(from.ParticipantID)
	unlock := r.locks.Lock(id)
	defer unlock()

	conv, err := r.store.ResolveOrCreate(ctx, from)
	if err != nil {
		return Result{}, err
	}

	stored, err := r.store.Append(ctx, conv.ID, domain.Message{
		From:      from.ParticipantID,
		FromName:  from.DisplayName,
		Role:      domain.RoleCustomer,
		Text:      in.Text,
		Timestamp: in.Timestamp,
	})
	if err != nil {
		return Result{}, err
	}
	r.emit(ctx, hooks.EventMessageStored, messageData(stored))

	res := Result{Message: stored}
	if assignee := conv.LiveAssignee(); assignee != "" {
		if h, ok := r.dir.AgentHandle(assignee); ok {
			res.Outcome = OutcomeDirect
			res.Recipients = []domain.Handle{h}
		}
	}
	if res.Outcome == "" {
		res.Recipients = r.dir.AgentHandles()
		res.Outcome = OutcomeBroadcast
		if len(res.Recipients) == 0 {
			res.Outcome = OutcomeStoredOnly
			data := messageData(stored)
			data["customerName"] = from.DisplayName
			r.emit(ctx, hooks.EventMessageUnattended, data)
		}
	}

	if len(res.Recipients) > 0 {
		r.out.DeliverMessage(res.Recipients, stored)
	}
	r.record(res, conv)
	return res, nil
}

func (r *Router) routeFromAgent(ctx context.Context, from domain.Identity, in Inbound) (Result, error) {
	if in.To == "" {
		return Result{}, fmt.Errorf("agent message without target: %w", domain.ErrUnknownConversation)
	}
	unlock := r.locks.Lock(in.To)
	defer unlock()

	conv, err := r.store.Get(ctx, in.To)
	if err != nil {
		return Result{}, err
	}

	stored, err := r.store.Append(ctx, conv.ID, domain.Message{
		From:      from.ParticipantID,
		FromName:  from.DisplayName,
		To:        conv.CustomerParticipantID,
		Role:      domain.RoleAgent,
		Text:      in.Text,
		Timestamp: in.Timestamp,
	})
	if err != nil {
		return Result{}, err
	}
	r.emit(ctx, hooks.EventMessageStored, messageData(stored))

	// The message is already stored, so a failed claim still delivers.
	if claimed, err := r.claim(ctx, conv, from.ParticipantID); err != nil {
		r.log.Warn().
			Err(err).
			Str("conversationId", conv.ID).
			Str("agentId", from.ParticipantID).
			Msg("claim failed, delivering unassigned")
	} else {
		conv = claimed
	}

	res := Result{Message: stored, Outcome: OutcomeStoredOnly}
	if h, ok := r.conns.LookupByParticipant(conv.CustomerParticipantID); ok {
		res.Outcome = OutcomeToCustomer
		res.Recipients = []domain.Handle{h}
		r.out.DeliverMessage(res.Recipients, stored)
	}
	r.record(res, conv)
	return res, nil
}

// claim assigns conv to agentID unless it already is the live assignee.
func (r *Router) claim(ctx context.Context, conv domain.Conversation, agentID string) (domain.Conversation, error) {
	if conv.LiveAssignee() == agentID {
		return conv, nil
	}
	prev := conv.LiveAssignee()
	conv, err := r.store.Assign(ctx, conv.ID, agentID)
	if err != nil {
		return conv, err
	}
	r.log.Info().
		Str("conversationId", conv.ID).
		Str("agentId", agentID).
		Str("previous", prev).
		Msg("conversation assigned")
	r.emit(ctx, hooks.EventConversationAssigned, map[string]any{
		"conversationId": conv.ID,
		"agentId":        agentID,
		"previousAgent":  prev,
	})
	return conv, nil
}

// Select assigns the conversation to the agent (last select wins) and sends
// the full history to the agent's connection.
func (r *Router) Select(ctx context.Context, agent domain.Identity, h domain.Handle, conversationID string) ([]domain.Message, error) {
	if !agent.IsAgent() {
		return nil, domain.ErrUnsupportedRole
	}
	unlock := r.locks.Lock(conversationID)
	defer unlock()

	conv, err := r.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, err := r.claim(ctx, conv, agent.ParticipantID); err != nil {
		return nil, err
	}
	msgs, err := r.store.History(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	r.out.DeliverHistory(h, conversationID, msgs)
	return msgs, nil
}

// Close marks a conversation closed. Later customer messages on it fall
// back to broadcast until an agent selects it again.
func (r *Router) Close(ctx context.Context, actor domain.Identity, conversationID string) error {
	if !actor.IsAgent() {
		return domain.ErrUnsupportedRole
	}
	unlock := r.locks.Lock(conversationID)
	defer unlock()

	conv, err := r.store.MarkClosed(ctx, conversationID)
	if err != nil {
		return err
	}
	r.log.Info().
		Str("conversationId", conv.ID).
		Str("closedBy", actor.ParticipantID).
		Msg("conversation closed")
	r.emit(ctx, hooks.EventConversationClosed, map[string]any{
		"conversationId": conv.ID,
		"closedBy":       actor.ParticipantID,
	})
	return nil
}

// OpenCustomer resolves the customer's conversation and sends its history
// to the customer's connection, so a reconnect resumes where it left off.
func (r *Router) OpenCustomer(ctx context.Context, customer domain.Identity, h domain.Handle) (domain.Conversation, error) {
	if !customer.IsCustomer() {
		return domain.Conversation{}, domain.ErrUnsupportedRole
	}
	id := domain.ConversationIDFor(customer.ParticipantID)
	unlock := r.locks.Lock(id)
	defer unlock()

	conv, err := r.store.ResolveOrCreate(ctx, customer)
	if err != nil {
		return domain.Conversation{}, err
	}
	msgs, err := r.store.History(ctx, conv.ID)
	if err != nil {
		return domain.Conversation{}, err
	}
	r.out.DeliverHistory(h, conv.ID, msgs)
	return conv, nil
}

// Conversations lists every conversation with its customer's online state.
func (r *Router) Conversations(ctx context.Context) ([]Summary, error) {
	convs, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(convs, func(c domain.Conversation, _ int) Summary {
		_, online := r.conns.LookupByParticipant(c.CustomerParticipantID)
		return Summary{Conversation: c, Online: online}
	}), nil
}

func (r *Router) record(res Result, conv domain.Conversation) {
	metrics.RecordRouted(string(res.Outcome))
	r.log.Debug().
		Str("conversationId", conv.ID).
		Int64("seq", res.Message.SequenceNumber).
		Str("from", res.Message.From).
		Str("outcome", string(res.Outcome)).
		Int("recipients", len(res.Recipients)).
		Msg("message routed")
}

func (r *Router) emit(ctx context.Context, event string, data map[string]any) {
	if r.hooks == nil {
		return
	}
	r.hooks.EmitAsync(context.WithoutCancel(ctx), event, data)
}

func messageData(m domain.Message) map[string]any {
	return map[string]any{
		"conversationId": m.ConversationID,
		"from":           m.From,
		"role":           string(m.Role),
		"text":           m.Text,
		"sequenceNumber": m.SequenceNumber,
	}
}

// IsRecoverable reports whether err leaves the sender's connection usable.
// Only storage exhaustion is treated as fatal.
func IsRecoverable(err error) bool {
	return !errors.Is(err, domain.ErrStorageExhausted)
}
