package alert

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/deskchat/internal/config"
	"github.com/soyeahso/deskchat/internal/hooks"
	"github.com/soyeahso/deskchat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	fail  error
	calls int
}

func (f *fakeSender) Send(target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, target+" "+text)
	return nil
}

func unattended(convID, text string) hooks.Payload {
	return hooks.Payload{
		Event: hooks.EventMessageUnattended,
		Data: map[string]any{
			"conversationId": convID,
			"customerName":   "Sam",
			"text":           text,
			"sequenceNumber": int64(1),
		},
	}
}

func TestNotifier_Throttle(t *testing.T) {
	fs := &fakeSender{}
	n := NewNotifier(fs, "#support", 5*time.Minute, testLogger())
	clock := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return clock }

	require.NoError(t, n.Handle(context.Background(), unattended("guest-42", "hi")))
	require.NoError(t, n.Handle(context.Background(), unattended("guest-42", "anyone?")))
	require.NoError(t, n.Handle(context.Background(), unattended("guest-7", "hello")))
	assert.Len(t, fs.sent, 2, "second guest-42 alert is throttled")

	clock = clock.Add(5 * time.Minute)
	require.NoError(t, n.Handle(context.Background(), unattended("guest-42", "still here")))
	assert.Len(t, fs.sent, 3)
	assert.True(t, strings.HasPrefix(fs.sent[0], "#support [deskchat]"))
}

func TestNotifier_ExpiredEntriesPruned(t *testing.T) {
	n := NewNotifier(&fakeSender{}, "#support", 5*time.Minute, testLogger())
	clock := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return clock }

	for _, id := range []string{"guest-1", "guest-2", "guest-3"} {
		require.NoError(t, n.Handle(context.Background(), unattended(id, "hi")))
	}
	assert.Equal(t, 3, n.tracked())

	clock = clock.Add(time.Minute)
	require.NoError(t, n.Handle(context.Background(), unattended("guest-4", "hi")))
	assert.Equal(t, 4, n.tracked(), "entries inside the window are kept")

	clock = clock.Add(5 * time.Minute)
	require.NoError(t, n.Handle(context.Background(), unattended("guest-5", "hi")))
	assert.Equal(t, 1, n.tracked())
}

func TestNotifier_FailureClearsThrottle(t *testing.T) {
	fs := &fakeSender{fail: ErrNotConnected}
	n := NewNotifier(fs, "#support", time.Hour, testLogger())

	err := n.Handle(context.Background(), unattended("guest-42", "hi"))
	assert.True(t, errors.Is(err, ErrNotConnected))

	fs.fail = nil
	require.NoError(t, n.Handle(context.Background(), unattended("guest-42", "hi again")))
	assert.Equal(t, 2, fs.calls)
	assert.Len(t, fs.sent, 1)
}

func TestNotifier_MissingConversation(t *testing.T) {
	n := NewNotifier(&fakeSender{}, "#support", time.Minute, testLogger())
	err := n.Handle(context.Background(), hooks.Payload{Data: map[string]any{}})
	assert.Error(t, err)
}

func TestNotifier_Register(t *testing.T) {
	hm := hooks.NewManager(testLogger())
	fs := &fakeSender{}
	n := NewNotifier(fs, "#support", time.Minute, testLogger())
	n.Register(hm)
	assert.Equal(t, 1, hm.Count(hooks.EventMessageUnattended))

	hm.Emit(context.Background(), hooks.EventMessageUnattended, unattended("guest-1", "hey").Data)
	assert.Len(t, fs.sent, 1)
}

func TestFormatNotice(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{
			name: "named guest",
			data: map[string]any{"conversationId": "guest-42", "customerName": "Sam", "text": "where is\nmy order", "sequenceNumber": int64(3)},
			want: "[deskchat] no agent online for Sam (guest-42) #3: where is my order",
		},
		{
			name: "name equals id",
			data: map[string]any{"conversationId": "u1", "customerName": "u1", "text": "hi"},
			want: "[deskchat] no agent online for u1: hi",
		},
		{
			name: "json number",
			data: map[string]any{"conversationId": "u1", "text": "hi", "sequenceNumber": float64(9)},
			want: "[deskchat] no agent online for u1 #9: hi",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatNotice(tt.data))
		})
	}
}

func TestFormatNotice_Truncates(t *testing.T) {
	got := FormatNotice(map[string]any{"conversationId": "u1", "text": strings.Repeat("a", 500)})
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Less(t, len(got), 300)
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   []string
	}{
		{"short", "hello", 400, []string{"hello"}},
		{"newlines", "a\r\n\nb", 400, []string{"a", "b"}},
		{"long", "abcdef", 4, []string{"abcd", "ef"}},
		{"empty", "", 10, []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitMessage(tt.text, tt.maxLen))
		})
	}
}

func TestIRC_SendBeforeStart(t *testing.T) {
	c := NewIRC(config.IRCAlertConfig{Server: "irc.example.net", Nick: "deskbot", Channel: "#support"}, testLogger())
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Send("#support", "hi"), ErrNotConnected)
	c.Stop()
}
