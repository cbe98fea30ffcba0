package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/deskchat/internal/auth"
	"github.com/soyeahso/deskchat/internal/config"
	"github.com/soyeahso/deskchat/internal/conversation"
	"github.com/soyeahso/deskchat/internal/domain"
	"github.com/soyeahso/deskchat/internal/hooks"
	"github.com/soyeahso/deskchat/internal/logging"
	"github.com/soyeahso/deskchat/internal/metrics"
	"github.com/soyeahso/deskchat/internal/presence"
	"github.com/soyeahso/deskchat/internal/registry"
	"github.com/soyeahso/deskchat/internal/routing"
	"github.com/soyeahso/deskchat/internal/version"
	"golang.org/x/time/rate"
)

// Server is the deskchat HTTP + WebSocket server. It owns the connection
// registry, presence directory and router, and wires them to the sockets.
type Server struct {
	cfg      config.Config
	log      *logging.Logger
	handlers map[string]RequestHandler

	store      conversation.Store
	registry   *registry.Registry
	presence   *presence.Directory
	router     *routing.Router
	clients    *ClientRegistry
	dispatcher *Dispatcher
	resolver   *auth.Resolver
	hooks      *hooks.Manager
	failures   *failureLimiter

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithStore sets the conversation store. Defaults to an in-memory store
// bounded by the chat limits in config.
func WithStore(st conversation.Store) ServerOption {
	return func(s *Server) {
		s.store = st
	}
}

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// New creates a gateway server and wires the chat core.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		log:      log.Sub("gateway"),
		handlers: make(map[string]RequestHandler),
		failures: newFailureLimiter(),
		resolver: auth.NewResolver(auth.Options{
			Secret:        []byte(cfg.Auth.JWTSecret),
			AllowGuests:   cfg.Auth.GuestsAllowed(),
			TrustDeclared: cfg.Auth.TrustDeclared,
		}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = conversation.NewMemoryStore(conversation.Limits{
			MaxMessagesPerConversation: cfg.Chat.MaxMessagesPerConversation,
			MaxConversations:           cfg.Chat.MaxConversations,
		})
	}

	s.clients = NewClientRegistry(log.Sub("clients"))
	s.dispatcher = NewDispatcher(s.clients, log)
	s.registry = registry.New(log)
	s.presence = presence.New(s.registry, s.dispatcher, log)

	var routerOpts []routing.Option
	if s.hooks != nil {
		routerOpts = append(routerOpts, routing.WithHooks(s.hooks))
	}
	s.router = routing.New(s.store, s.registry, s.presence, s.dispatcher, log, routerOpts...)

	s.registerEventHandlers()
	return s
}

// checkWebSocketOrigin returns a function that validates WebSocket Origin headers.
// If no origins are configured, only same-origin (no Origin header) or non-browser
// clients are allowed. If origins are configured, the Origin must match one of them.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Handle registers the handler for an inbound event kind.
func (s *Server) Handle(event string, handler RequestHandler) {
	s.handlers[event] = handler
}

// Presence exposes the presence directory.
func (s *Server) Presence() *presence.Directory { return s.presence }

// Router exposes the message router.
func (s *Server) Router() *routing.Router { return s.router }

// Clients returns the number of open sockets.
func (s *Server) Clients() int { return s.clients.Count() }

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Handler returns the HTTP handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.Gateway.AllowedOrigins)
}

// Start begins listening for HTTP and WebSocket connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Gateway.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Gateway.TLS.CertPath, s.cfg.Gateway.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Gateway.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled, tokens will be transmitted in cleartext")
	}

	s.startedAt = time.Now()

	go s.pruneFailures(ctx)

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Bool("guests", s.cfg.Auth.GuestsAllowed()).
		Bool("tokens", s.cfg.Auth.JWTSecret != "").
		Int("events", len(s.handlers)).
		Msg("gateway server ready")

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{
			"addr": ln.Addr().String(),
		})
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll(websocket.CloseGoingAway, "server shutting down")
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) pruneFailures(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.failures.prune()
		}
	}
}

// Addr returns the configured listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// handleWebSocket upgrades HTTP to WebSocket and runs the connection loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.failures.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited, too many failed registrations")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	if s.cfg.Gateway.MaxPayloadBytes > 0 {
		conn.SetReadLimit(s.cfg.Gateway.MaxPayloadBytes)
	}

	h := s.registry.Open()
	client := NewClient(h, conn, s.cfg.Gateway.SendBuffer, s.newLimiter(), s.log.Sub("ws"))
	s.clients.Add(client)
	go client.writePump()

	defer s.disconnect(r.Context(), client)

	client.SendEvent(EventHello, HelloPayload{
		ConnID:     h,
		Protocol:   ProtocolVersion,
		Server:     version.UserAgent(),
		MaxPayload: s.cfg.Gateway.MaxPayloadBytes,
	}, 0)

	s.readLoop(r.Context(), client)
}

func (s *Server) newLimiter() *rate.Limiter {
	rl := s.cfg.Chat.RateLimit
	if rl.PerSecond <= 0 {
		return nil
	}
	burst := rl.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rl.PerSecond), burst)
}

// disconnect unbinds the connection, which updates presence, then releases
// the socket.
func (s *Server) disconnect(ctx context.Context, c *Client) {
	id, bound := s.registry.Lookup(c.Handle)
	s.registry.Close(c.Handle)
	s.clients.Remove(c.Handle)
	c.Close()

	if bound && s.hooks != nil {
		s.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventParticipantDisconnected, map[string]any{
			"participantId": id.ParticipantID,
			"role":          string(id.Role),
			"connId":        string(c.Handle),
		})
	}
}

// readLoop processes incoming frames until the socket closes.
func (s *Server) readLoop(ctx context.Context, c *Client) {
	for {
		frame, err := c.ReadFrame()
		if err != nil {
			var fe *frameError
			if errors.As(err, &fe) {
				metrics.RecordDropped(metrics.DropInvalidPayload)
				s.log.Warn().Err(err).Str("connId", string(c.Handle)).Msg("ignoring malformed frame")
				continue
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", string(c.Handle)).Msg("client closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", string(c.Handle)).Msg("read ended")
			}
			return
		}

		if frame.Type != FrameTypeEvent {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-event frame")
			continue
		}
		s.dispatch(ctx, c, frame)
	}
}

// dispatch routes an event frame to its handler.
func (s *Server) dispatch(ctx context.Context, c *Client, frame Frame) {
	rc := &RequestContext{
		Ctx:    ctx,
		Client: c,
		Frame:  frame,
		Server: s,
	}

	s.log.Trace().
		Str("connId", string(c.Handle)).
		Str("event", frame.Event).
		Int("bytes", len(frame.Payload)).
		Msg("frame received")

	handler, ok := s.handlers[frame.Event]
	if !ok {
		rc.Drop(metrics.DropUnknownEvent, nil)
		return
	}
	handler(rc)
}

func (s *Server) emit(rc *RequestContext, event string, data map[string]any) {
	if s.hooks == nil {
		return
	}
	s.hooks.EmitAsync(context.WithoutCancel(rc.Ctx), event, data)
}

// Connections reports the bound identities, for diagnostics.
func (s *Server) Connections() []domain.Binding {
	return s.registry.Bindings()
}
