// Package presence derives the live customer and agent views from the
// connection registry and tells the dispatcher who to notify.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/soyeahso/deskchat/internal/domain"
	"github.com/soyeahso/deskchat/internal/logging"
	"github.com/soyeahso/deskchat/internal/metrics"
	"github.com/soyeahso/deskchat/internal/registry"
)

// Entry is one participant in a presence view.
type Entry struct {
	ParticipantID string      `json:"participantId"`
	DisplayName   string      `json:"displayName"`
	Role          domain.Role `json:"role"`
	ConnectedAt   time.Time   `json:"connectedAt"`
}

// Notifier delivers presence events to connections. Calls happen while the
// registry lock is held and must not block.
type Notifier interface {
	ParticipantConnected(to []domain.Handle, e Entry)
	ParticipantDisconnected(to []domain.Handle, participantID string)
	PresenceSnapshot(to domain.Handle, liveCustomers []Entry)
}

type live struct {
	entry  Entry
	handle domain.Handle
}

// Directory is the Presence Directory. Its views change only in response to
// registry changes.
type Directory struct {
	mu        sync.RWMutex
	customers map[string]live
	agents    map[string]live
	notifier  Notifier
	log       *logging.Logger
}

// New creates a directory and subscribes it to reg.
func New(reg *registry.Registry, notifier Notifier, log *logging.Logger) *Directory {
	d := &Directory{
		customers: make(map[string]live),
		agents:    make(map[string]live),
		notifier:  notifier,
		log:       log.Sub("presence"),
	}
	reg.Subscribe(d)
	return d
}

// OnChange implements registry.Listener.
func (d *Directory) OnChange(c registry.Change) {
	id := c.Binding.Identity
	view := d.viewFor(id.Role)
	if view == nil {
		// Participants outside the customer/agent roles are never listed.
		return
	}

	e := Entry{
		ParticipantID: id.ParticipantID,
		DisplayName:   id.DisplayName,
		Role:          id.Role,
		ConnectedAt:   c.Binding.ConnectedAt,
	}

	switch c.Kind {
	case registry.Bound:
		d.mu.Lock()
		view[id.ParticipantID] = live{entry: e, handle: c.Binding.Handle}
		watchers := d.agentHandlesLocked(c.Binding.Handle)
		var snapshot []Entry
		if id.IsAgent() {
			snapshot = d.customersLocked()
		}
		d.recordLocked()
		d.mu.Unlock()

		d.notifier.ParticipantConnected(watchers, e)
		if id.IsAgent() {
			d.notifier.PresenceSnapshot(c.Binding.Handle, snapshot)
		}
		d.log.Debug().
			Str("participantId", id.ParticipantID).
			Str("role", string(id.Role)).
			Int("notified", len(watchers)).
			Msg("participant connected")

	case registry.Unbound:
		d.mu.Lock()
		if cur, ok := view[id.ParticipantID]; ok && cur.handle == c.Binding.Handle {
			delete(view, id.ParticipantID)
		}
		watchers := d.agentHandlesLocked("")
		d.recordLocked()
		d.mu.Unlock()

		d.notifier.ParticipantDisconnected(watchers, id.ParticipantID)
		d.log.Debug().
			Str("participantId", id.ParticipantID).
			Int("notified", len(watchers)).
			Msg("participant disconnected")
	}
}

func (d *Directory) viewFor(r domain.Role) map[string]live {
	switch r {
	case domain.RoleCustomer:
		return d.customers
	case domain.RoleAgent:
		return d.agents
	case domain.RoleOther:
		return nil
	}
	return nil
}

func (d *Directory) agentHandlesLocked(except domain.Handle) []domain.Handle {
	out := make([]domain.Handle, 0, len(d.agents))
	for _, a := range d.agents {
		if a.handle != except {
			out = append(out, a.handle)
		}
	}
	return out
}

func (d *Directory) customersLocked() []Entry {
	return sortedEntries(d.customers)
}

func (d *Directory) recordLocked() {
	metrics.SetLiveParticipants(string(domain.RoleCustomer), len(d.customers))
	metrics.SetLiveParticipants(string(domain.RoleAgent), len(d.agents))
}

func sortedEntries(view map[string]live) []Entry {
	out := lo.MapToSlice(view, func(_ string, l live) Entry { return l.entry })
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ParticipantID < out[j].ParticipantID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// LiveCustomers returns the connected customers, oldest connection first.
func (d *Directory) LiveCustomers() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedEntries(d.customers)
}

// LiveAgents returns the connected agents, oldest connection first.
func (d *Directory) LiveAgents() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedEntries(d.agents)
}

// AgentHandles returns the handles of every live agent.
func (d *Directory) AgentHandles() []domain.Handle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.agentHandlesLocked("")
}

// AgentHandle returns the live handle of one agent.
func (d *Directory) AgentHandle(agentID string) (domain.Handle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.agents[agentID]
	return a.handle, ok
}

// CustomerOnline reports whether a customer currently has a live binding.
func (d *Directory) CustomerOnline(customerID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.customers[customerID]
	return ok
}
