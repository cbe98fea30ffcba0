package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/deskchat/internal/domain"
	"github.com/soyeahso/deskchat/internal/logging"
	"github.com/soyeahso/deskchat/internal/metrics"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

// Client is one accepted WebSocket connection. Outbound frames go through a
// bounded queue drained by a single writer goroutine, so senders never block
// on the socket.
type Client struct {
	Handle      domain.Handle
	Socket      *websocket.Conn
	RemoteAddr  string
	ConnectedAt time.Time

	send    chan []byte
	quit    chan struct{}
	done    chan struct{}
	limiter *rate.Limiter
	log     *logging.Logger

	quitOnce    sync.Once
	closeCode   int
	closeReason string

	mu      sync.Mutex
	guestID string
}

// NewClient wraps an upgraded connection. queue bounds the outbound frames
// waiting to be written; limiter bounds inbound chat messages.
func NewClient(h domain.Handle, conn *websocket.Conn, queue int, limiter *rate.Limiter, log *logging.Logger) *Client {
	if queue <= 0 {
		queue = 1
	}
	return &Client{
		Handle:      h,
		Socket:      conn,
		RemoteAddr:  conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		send:        make(chan []byte, queue),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		limiter:     limiter,
		log:         log.With("connId", string(h)),
	}
}

// Enqueue queues an encoded frame for writing. It returns false without
// blocking if the client is closing or its queue is full.
func (c *Client) Enqueue(data []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendEvent encodes and queues one event.
func (c *Client) SendEvent(event string, payload any, seq int64) bool {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return false
	}
	data, err := json.Marshal(f)
	if err != nil {
		return false
	}
	return c.Enqueue(data)
}

// Allow reports whether the client may send another chat message now.
func (c *Client) Allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// GuestID returns the guest id issued to this connection, if any.
func (c *Client) GuestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guestID
}

func (c *Client) setGuestID(id string) {
	c.mu.Lock()
	c.guestID = id
	c.mu.Unlock()
}

// ReadFrame reads the next frame from the WebSocket.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, &frameError{err: err}
	}
	return f, nil
}

// frameError marks a frame that arrived intact but could not be decoded.
type frameError struct{ err error }

func (e *frameError) Error() string { return "malformed frame: " + e.err.Error() }
func (e *frameError) Unwrap() error { return e.err }

// Close flushes queued frames, sends a normal close and closes the socket.
func (c *Client) Close() {
	c.Shutdown(websocket.CloseNormalClosure, "")
}

// Shutdown is Close with an explicit close code and reason. Only the first
// call has any effect.
func (c *Client) Shutdown(code int, reason string) {
	c.quitOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.quit)
	})
}

// Done is closed once the writer has exited and the socket is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// writePump is the only goroutine that writes to the socket.
func (c *Client) writePump() {
	defer close(c.done)
	defer c.Socket.Close()

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				metrics.RecordSendFailure()
				c.log.Warn().Err(err).Msg("write failed")
				return
			}
		case <-c.quit:
			c.drain()
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			c.Socket.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeReason))
			return
		}
	}
}

func (c *Client) drain() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				metrics.RecordSendFailure()
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(data []byte) error {
	c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Socket.WriteMessage(websocket.TextMessage, data)
}

// ClientRegistry tracks accepted connections by handle.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[domain.Handle]*Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[domain.Handle]*Client),
		log:     log,
	}
}

// Add tracks a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c.Handle] = c
	r.mu.Unlock()
	metrics.ConnectionOpened()
	r.log.Info().Str("connId", string(c.Handle)).Str("remote", c.RemoteAddr).Msg("client connected")
}

// Remove forgets a client.
func (r *ClientRegistry) Remove(h domain.Handle) {
	r.mu.Lock()
	_, ok := r.clients[h]
	delete(r.clients, h)
	r.mu.Unlock()
	if ok {
		metrics.ConnectionClosed()
		r.log.Info().Str("connId", string(h)).Msg("client disconnected")
	}
}

// Get returns a client by handle.
func (r *ClientRegistry) Get(h domain.Handle) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[h]
	return c, ok
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll asks every client to close.
func (r *ClientRegistry) CloseAll(code int, reason string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		c.Shutdown(code, reason)
	}
}
