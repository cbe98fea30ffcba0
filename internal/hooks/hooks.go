// Package hooks lets optional features react to chat lifecycle events
// without the core knowing about them. The IRC alert notifier is one.
package hooks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/deskchat/internal/logging"
	"github.com/soyeahso/deskchat/internal/metrics"
)

// Event names emitted by the gateway and router.
const (
	EventParticipantConnected    = "participant_connected"
	EventParticipantDisconnected = "participant_disconnected"
	EventMessageStored           = "message_stored"
	EventMessageUnattended       = "message_unattended"
	EventConversationAssigned    = "conversation_assigned"
	EventConversationClosed      = "conversation_closed"
	EventGatewayStart            = "gateway_start"
	EventGatewayStop             = "gateway_stop"
)

// AllEvents lists every event name.
var AllEvents = []string{
	EventParticipantConnected,
	EventParticipantDisconnected,
	EventMessageStored,
	EventMessageUnattended,
	EventConversationAssigned,
	EventConversationClosed,
	EventGatewayStart,
	EventGatewayStop,
}

// DefaultAsyncTimeout bounds each handler started by EmitAsync.
const DefaultAsyncTimeout = 30 * time.Second

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	At    time.Time      `json:"at"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles one hook event. A returned error is logged and counted;
// it never stops the other handlers.
type Handler func(ctx context.Context, p Payload) error

type namedHandler struct {
	name    string
	handler Handler
}

// Manager holds handler registrations and dispatches events to them.
type Manager struct {
	mu           sync.RWMutex
	handlers     map[string][]namedHandler
	log          *logging.Logger
	inflight     sync.WaitGroup
	asyncTimeout time.Duration
	now          func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithAsyncTimeout sets the deadline given to each async handler. Zero
// disables it.
func WithAsyncTimeout(d time.Duration) Option {
	return func(m *Manager) { m.asyncTimeout = d }
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		handlers:     make(map[string][]namedHandler),
		log:          log.Sub("hooks"),
		asyncTimeout: DefaultAsyncTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// On registers a handler for event. name identifies it in logs and in Off.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes every handler named name from event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := slices.DeleteFunc(slices.Clone(m.handlers[event]), func(h namedHandler) bool {
		return h.name == name
	})
	if len(kept) == 0 {
		delete(m.handlers, event)
		return
	}
	m.handlers[event] = kept
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.handlers[event])
}

// Emit runs the handlers for event one after another, in registration
// order, on the caller's goroutine.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := Payload{Event: event, At: m.now(), Data: data}
	for _, h := range handlers {
		m.call(ctx, h, p)
	}
}

// EmitAsync starts every handler for event on its own goroutine and returns
// at once. Each handler gets the async timeout. Wait drains them.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := Payload{Event: event, At: m.now(), Data: data}

	m.inflight.Add(len(handlers))
	for _, h := range handlers {
		go func() {
			defer m.inflight.Done()
			hctx := ctx
			if m.asyncTimeout > 0 {
				var cancel context.CancelFunc
				hctx, cancel = context.WithTimeout(ctx, m.asyncTimeout)
				defer cancel()
			}
			m.call(hctx, h, p)
		}()
	}
}

// call runs one handler. Panics and errors are logged and counted.
func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return h.handler(ctx, p)
	}()
	if err == nil {
		return
	}
	metrics.RecordHookFailure(p.Event)
	m.log.Warn().
		Err(err).
		Str("event", p.Event).
		Str("handler", h.name).
		Msg("hook handler failed")
}

// Wait blocks until every handler started by EmitAsync has returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// Count returns the number of handlers registered for event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events with at least one handler, sorted.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	slices.Sort(events)
	return events
}
