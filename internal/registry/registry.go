// Package registry maps live transport connections to the identity
// registered on them.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/deskchat/internal/domain"
	"github.com/soyeahso/deskchat/internal/logging"
)

// ErrUnknownHandle is returned when binding a handle that was never opened
// or has already been closed.
var ErrUnknownHandle = errors.New("unknown connection handle")

// ChangeKind distinguishes bind and unbind notifications.
type ChangeKind int

const (
	Bound ChangeKind = iota
	Unbound
)

func (k ChangeKind) String() string {
	if k == Bound {
		return "bound"
	}
	return "unbound"
}

// Change describes one successful bind or unbind.
type Change struct {
	Kind    ChangeKind
	Binding domain.Binding
	// SupersededBy is set on an Unbound change caused by the same participant
	// binding on another handle.
	SupersededBy domain.Handle
}

// Listener observes registry changes. OnChange is invoked while the
// registry lock is held, so notifications for one participant arrive in the
// order the binds and unbinds happened. Implementations must not call back
// into the Registry.
type Listener interface {
	OnChange(c Change)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(c Change)

// OnChange calls f(c).
func (f ListenerFunc) OnChange(c Change) { f(c) }

// BindResult reports what a Bind did.
type BindResult struct {
	Binding domain.Binding
	// Superseded is the handle that previously held this participant, or ""
	// if there was none.
	Superseded domain.Handle
}

type slot struct {
	openedAt time.Time
	binding  *domain.Binding
}

// Registry is the Connection Registry. All mutations are serialized by a
// single mutex so concurrent binds for one participant cannot both win.
type Registry struct {
	mu            sync.Mutex
	slots         map[domain.Handle]*slot
	byParticipant map[string]domain.Handle
	listeners     []Listener
	now           func() time.Time
	log           *logging.Logger
}

// New creates an empty registry.
func New(log *logging.Logger) *Registry {
	return &Registry{
		slots:         make(map[domain.Handle]*slot),
		byParticipant: make(map[string]domain.Handle),
		now:           time.Now,
		log:           log.Sub("registry"),
	}
}

// Subscribe adds a listener. Call before connections are opened.
func (r *Registry) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Open issues a handle for a newly accepted connection.
func (r *Registry) Open() domain.Handle {
	h := domain.Handle(uuid.New().String())
	r.mu.Lock()
	r.slots[h] = &slot{openedAt: r.now()}
	r.mu.Unlock()
	return h
}

// Close unbinds the handle (if bound) and forgets it. Safe to call more
// than once.
func (r *Registry) Close(h domain.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[h]; !ok {
		return
	}
	r.unbindLocked(h, "")
	delete(r.slots, h)
}

// Bind associates identity with handle. A handle already bound to another
// identity is unbound first. If another handle holds the same participant,
// that handle is unbound and reported in BindResult.Superseded.
func (r *Registry) Bind(h domain.Handle, id domain.Identity) (BindResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[h]
	if !ok {
		return BindResult{}, ErrUnknownHandle
	}

	if s.binding != nil {
		r.unbindLocked(h, "")
	}

	var res BindResult
	if prev, ok := r.byParticipant[id.ParticipantID]; ok && prev != h {
		r.unbindLocked(prev, h)
		res.Superseded = prev
		r.log.Info().
			Str("participantId", id.ParticipantID).
			Str("connId", string(prev)).
			Str("supersededBy", string(h)).
			Msg("binding superseded")
	}

	b := domain.Binding{Handle: h, Identity: id, ConnectedAt: r.now()}
	s.binding = &b
	r.byParticipant[id.ParticipantID] = h
	res.Binding = b

	r.log.Info().
		Str("connId", string(h)).
		Str("participantId", id.ParticipantID).
		Str("role", string(id.Role)).
		Msg("identity bound")

	r.notify(Change{Kind: Bound, Binding: b})
	return res, nil
}

// Unbind removes the binding on h. It reports false if h was not bound.
func (r *Registry) Unbind(h domain.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unbindLocked(h, "")
}

func (r *Registry) unbindLocked(h domain.Handle, by domain.Handle) bool {
	s, ok := r.slots[h]
	if !ok || s.binding == nil {
		return false
	}
	b := *s.binding
	s.binding = nil
	if r.byParticipant[b.Identity.ParticipantID] == h {
		delete(r.byParticipant, b.Identity.ParticipantID)
	}

	r.log.Info().
		Str("connId", string(h)).
		Str("participantId", b.Identity.ParticipantID).
		Msg("identity unbound")

	r.notify(Change{Kind: Unbound, Binding: b, SupersededBy: by})
	return true
}

func (r *Registry) notify(c Change) {
	for _, l := range r.listeners {
		l.OnChange(c)
	}
}

// Lookup returns the identity bound to h.
func (r *Registry) Lookup(h domain.Handle) (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[h]
	if !ok || s.binding == nil {
		return domain.Identity{}, false
	}
	return s.binding.Identity, true
}

// LookupByParticipant returns the live handle for a participant.
func (r *Registry) LookupByParticipant(participantID string) (domain.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byParticipant[participantID]
	return h, ok
}

// Bindings returns a snapshot of every current binding.
func (r *Registry) Bindings() []domain.Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Binding, 0, len(r.byParticipant))
	for _, h := range r.byParticipant {
		out = append(out, *r.slots[h].binding)
	}
	return out
}

// Connections returns the number of open handles, bound or not.
func (r *Registry) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
