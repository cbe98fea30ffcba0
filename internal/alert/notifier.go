package alert

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/deskchat/internal/hooks"
	"github.com/soyeahso/deskchat/internal/logging"
	"github.com/soyeahso/deskchat/internal/metrics"
)

const (
	hookName       = "irc-alert"
	maxPreviewText = 200
)

// Sender delivers one alert line to a target.
type Sender interface {
	Send(target, text string) error
}

// Notifier turns message_unattended hook events into alerts, at most one per
// conversation per throttle window.
type Notifier struct {
	sender   Sender
	target   string
	throttle time.Duration
	log      *logging.Logger
	now      func() time.Time

	mu    sync.Mutex
	last  map[string]time.Time
	swept time.Time
}

// NewNotifier creates a notifier posting to target through sender.
func NewNotifier(sender Sender, target string, throttle time.Duration, log *logging.Logger) *Notifier {
	return &Notifier{
		sender:   sender,
		target:   target,
		throttle: throttle,
		log:      log.Sub("alert"),
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// Register subscribes the notifier to the hook manager.
func (n *Notifier) Register(hm *hooks.Manager) {
	hm.On(hooks.EventMessageUnattended, hookName, n.Handle)
}

// Handle is the hooks.Handler for message_unattended.
func (n *Notifier) Handle(_ context.Context, p hooks.Payload) error {
	convID, _ := p.Data["conversationId"].(string)
	if convID == "" {
		return fmt.Errorf("alert: payload has no conversationId")
	}

	if !n.allow(convID) {
		metrics.RecordAlert("throttled")
		n.log.Debug().Str("conversationId", convID).Msg("alert throttled")
		return nil
	}

	if err := n.sender.Send(n.target, FormatNotice(p.Data)); err != nil {
		n.forget(convID)
		metrics.RecordAlert("failed")
		return fmt.Errorf("alert %s: %w", convID, err)
	}
	metrics.RecordAlert("sent")
	n.log.Info().Str("conversationId", convID).Str("target", n.target).Msg("unattended alert sent")
	return nil
}

func (n *Notifier) allow(convID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	n.sweepLocked(now)
	if last, ok := n.last[convID]; ok && now.Sub(last) < n.throttle {
		return false
	}
	n.last[convID] = now
	return true
}

// sweepLocked drops expired throttle entries, at most once per window.
func (n *Notifier) sweepLocked(now time.Time) {
	if now.Sub(n.swept) < n.throttle {
		return
	}
	for id, last := range n.last {
		if now.Sub(last) >= n.throttle {
			delete(n.last, id)
		}
	}
	n.swept = now
}

// tracked returns the number of conversations inside a throttle window.
func (n *Notifier) tracked() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.last)
}

// forget clears the throttle window after a failed send so the next
// message retries.
func (n *Notifier) forget(convID string) {
	n.mu.Lock()
	delete(n.last, convID)
	n.mu.Unlock()
}

// FormatNotice renders the alert line for a message_unattended payload.
func FormatNotice(data map[string]any) string {
	convID, _ := data["conversationId"].(string)
	name, _ := data["customerName"].(string)
	text, _ := data["text"].(string)

	who := convID
	if name != "" && name != convID {
		who = fmt.Sprintf("%s (%s)", name, convID)
	}

	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxPreviewText {
		text = string(r[:maxPreviewText]) + "..."
	}

	var seq string
	switch v := data["sequenceNumber"].(type) {
	case int64:
		seq = fmt.Sprintf(" #%d", v)
	case int:
		seq = fmt.Sprintf(" #%d", v)
	case float64:
		seq = fmt.Sprintf(" #%d", int64(v))
	}

	return fmt.Sprintf("[deskchat] no agent online for %s%s: %s", who, seq, text)
}
