package gateway

import (
	"encoding/json"
	"sync/atomic"

	"github.com/soyeahso/deskchat/internal/domain"
	"github.com/soyeahso/deskchat/internal/logging"
	"github.com/soyeahso/deskchat/internal/metrics"
	"github.com/soyeahso/deskchat/internal/presence"
)

// Dispatcher turns presence and routing decisions into outbound events. It
// never blocks: handles that are gone are skipped and full queues drop the
// frame.
type Dispatcher struct {
	clients *ClientRegistry
	seq     atomic.Int64
	log     *logging.Logger
}

// NewDispatcher creates a dispatcher writing to the clients in reg.
func NewDispatcher(reg *ClientRegistry, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		clients: reg,
		log:     log.Sub("dispatcher"),
	}
}

// Send encodes one event and queues it on every handle in to.
func (d *Dispatcher) Send(to []domain.Handle, event string, payload any) int {
	if len(to) == 0 {
		return 0
	}
	f, err := NewEvent(event, payload, d.seq.Add(1))
	if err != nil {
		d.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return 0
	}
	data, err := json.Marshal(f)
	if err != nil {
		d.log.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return 0
	}

	sent := 0
	for _, h := range to {
		c, ok := d.clients.Get(h)
		if !ok {
			d.log.Debug().Str("connId", string(h)).Str("event", event).Msg("skipping closed connection")
			continue
		}
		if !c.Enqueue(data) {
			metrics.RecordDropped(metrics.DropSendBufferFull)
			d.log.Warn().Str("connId", string(h)).Str("event", event).Msg("send queue full, event dropped")
			continue
		}
		sent++
	}
	return sent
}

// SendTo is Send for a single handle.
func (d *Dispatcher) SendTo(h domain.Handle, event string, payload any) bool {
	return d.Send([]domain.Handle{h}, event, payload) == 1
}

// ParticipantConnected implements presence.Notifier.
func (d *Dispatcher) ParticipantConnected(to []domain.Handle, e presence.Entry) {
	d.Send(to, EventParticipantConnected, e)
}

// ParticipantDisconnected implements presence.Notifier.
func (d *Dispatcher) ParticipantDisconnected(to []domain.Handle, participantID string) {
	d.Send(to, EventParticipantDisconnected, DisconnectedPayload{ParticipantID: participantID})
}

// PresenceSnapshot implements presence.Notifier.
func (d *Dispatcher) PresenceSnapshot(to domain.Handle, liveCustomers []presence.Entry) {
	if liveCustomers == nil {
		liveCustomers = []presence.Entry{}
	}
	d.SendTo(to, EventPresenceSnapshot, SnapshotPayload{LiveCustomers: liveCustomers})
}

// DeliverMessage implements routing.Deliverer.
func (d *Dispatcher) DeliverMessage(to []domain.Handle, msg domain.Message) {
	d.Send(to, EventChatMessage, msg)
}

// DeliverHistory implements routing.Deliverer.
func (d *Dispatcher) DeliverHistory(to domain.Handle, conversationID string, msgs []domain.Message) {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	d.SendTo(to, EventChatHistory, HistoryPayload{ConversationID: conversationID, Messages: msgs})
}
