package presence

import (
	"sync"
	"testing"

	"github.com/soyeahso/deskchat/internal/domain"
	"github.com/soyeahso/deskchat/internal/logging"
	"github.com/soyeahso/deskchat/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	kind string
	to   []domain.Handle
	id   string
	snap []Entry
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeNotifier) ParticipantConnected(to []domain.Handle, e Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{kind: "connected", to: to, id: e.ParticipantID})
}

func (f *fakeNotifier) ParticipantDisconnected(to []domain.Handle, participantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{kind: "disconnected", to: to, id: participantID})
}

func (f *fakeNotifier) PresenceSnapshot(to domain.Handle, liveCustomers []Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{kind: "snapshot", to: []domain.Handle{to}, snap: liveCustomers})
}

func (f *fakeNotifier) take() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

func setup(t *testing.T) (*registry.Registry, *Directory, *fakeNotifier) {
	t.Helper()
	log := logging.New(nil, "silent")
	reg := registry.New(log)
	n := &fakeNotifier{}
	d := New(reg, n, log)
	return reg, d, n
}

func bind(t *testing.T, reg *registry.Registry, id string, role domain.Role) domain.Handle {
	t.Helper()
	h := reg.Open()
	_, err := reg.Bind(h, domain.Identity{ParticipantID: id, DisplayName: "name-" + id, Role: role})
	require.NoError(t, err)
	return h
}

func TestCustomerConnect_NoAgents(t *testing.T) {
	reg, d, n := setup(t)
	bind(t, reg, "c1", domain.RoleCustomer)

	events := n.take()
	require.Len(t, events, 1)
	assert.Equal(t, "connected", events[0].kind)
	assert.Empty(t, events[0].to)

	customers := d.LiveCustomers()
	require.Len(t, customers, 1)
	assert.Equal(t, "c1", customers[0].ParticipantID)
	assert.Equal(t, "name-c1", customers[0].DisplayName)
	assert.True(t, d.CustomerOnline("c1"))
}

func TestAgentConnect_GetsSnapshot(t *testing.T) {
	reg, d, n := setup(t)
	bind(t, reg, "c1", domain.RoleCustomer)
	bind(t, reg, "c2", domain.RoleCustomer)
	n.take()

	ha := bind(t, reg, "a1", domain.RoleAgent)
	events := n.take()
	require.Len(t, events, 2)

	assert.Equal(t, "connected", events[0].kind)
	assert.Empty(t, events[0].to, "an agent is not told about itself")

	assert.Equal(t, "snapshot", events[1].kind)
	assert.Equal(t, []domain.Handle{ha}, events[1].to)
	require.Len(t, events[1].snap, 2)
	assert.Equal(t, "c1", events[1].snap[0].ParticipantID)
	assert.Equal(t, "c2", events[1].snap[1].ParticipantID)

	h, ok := d.AgentHandle("a1")
	require.True(t, ok)
	assert.Equal(t, ha, h)
	assert.Equal(t, []domain.Handle{ha}, d.AgentHandles())
}

func TestCustomerConnect_BroadcastToAgents(t *testing.T) {
	reg, _, n := setup(t)
	ha1 := bind(t, reg, "a1", domain.RoleAgent)
	ha2 := bind(t, reg, "a2", domain.RoleAgent)
	n.take()

	bind(t, reg, "c1", domain.RoleCustomer)
	events := n.take()
	require.Len(t, events, 1)
	assert.ElementsMatch(t, []domain.Handle{ha1, ha2}, events[0].to)
}

func TestAgentConnect_OtherAgentsNotified(t *testing.T) {
	reg, d, n := setup(t)
	ha1 := bind(t, reg, "a1", domain.RoleAgent)
	n.take()

	bind(t, reg, "a2", domain.RoleAgent)
	events := n.take()
	require.Len(t, events, 2)
	assert.Equal(t, "connected", events[0].kind)
	assert.Equal(t, []domain.Handle{ha1}, events[0].to)
	assert.Len(t, d.LiveAgents(), 2)
}

func TestDisconnect_Broadcast(t *testing.T) {
	reg, d, n := setup(t)
	ha := bind(t, reg, "a1", domain.RoleAgent)
	hc := bind(t, reg, "c1", domain.RoleCustomer)
	n.take()

	reg.Close(hc)
	events := n.take()
	require.Len(t, events, 1)
	assert.Equal(t, "disconnected", events[0].kind)
	assert.Equal(t, "c1", events[0].id)
	assert.Equal(t, []domain.Handle{ha}, events[0].to)
	assert.False(t, d.CustomerOnline("c1"))

	reg.Close(ha)
	events = n.take()
	require.Len(t, events, 1)
	assert.Empty(t, events[0].to, "departed agent is not notified")
	assert.Empty(t, d.LiveAgents())
}

func TestSupersede_DisconnectThenConnect(t *testing.T) {
	reg, d, n := setup(t)
	ha := bind(t, reg, "a1", domain.RoleAgent)
	bind(t, reg, "c1", domain.RoleCustomer)
	n.take()

	h2 := bind(t, reg, "c1", domain.RoleCustomer)
	events := n.take()
	require.Len(t, events, 2)
	assert.Equal(t, "disconnected", events[0].kind)
	assert.Equal(t, "connected", events[1].kind)
	assert.Equal(t, []domain.Handle{ha}, events[1].to)

	assert.Len(t, d.LiveCustomers(), 1)
	h, ok := reg.LookupByParticipant("c1")
	require.True(t, ok)
	assert.Equal(t, h2, h)
}

func TestOtherRole_NeverListed(t *testing.T) {
	reg, d, n := setup(t)
	bind(t, reg, "a1", domain.RoleAgent)
	n.take()

	ho := bind(t, reg, "x1", domain.RoleOther)
	reg.Close(ho)
	assert.Empty(t, n.take())
	assert.Empty(t, d.LiveCustomers())
	assert.Len(t, d.LiveAgents(), 1)
}

func TestViewsAreSubsetOfBindings(t *testing.T) {
	reg, d, _ := setup(t)

	var handles []domain.Handle
	for _, id := range []string{"c1", "c2", "c3"} {
		handles = append(handles, bind(t, reg, id, domain.RoleCustomer))
	}
	bind(t, reg, "a1", domain.RoleAgent)
	reg.Close(handles[1])

	bound := map[string]bool{}
	for _, b := range reg.Bindings() {
		bound[b.Identity.ParticipantID] = true
	}
	for _, e := range append(d.LiveCustomers(), d.LiveAgents()...) {
		assert.True(t, bound[e.ParticipantID], "%s listed but not bound", e.ParticipantID)
	}
	assert.Len(t, d.LiveCustomers(), 2)
}
