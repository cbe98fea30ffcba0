package gateway

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/deskchat/internal/domain"
	"github.com/soyeahso/deskchat/internal/hooks"
	"github.com/soyeahso/deskchat/internal/metrics"
	"github.com/soyeahso/deskchat/internal/routing"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	if s.cfg.Metrics.IsEnabled() {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	mux.HandleFunc("/", handleNotFound)
}

// registerEventHandlers fills the dispatch table keyed by event kind.
func (s *Server) registerEventHandlers() {
	s.Handle(EventRegister, s.onRegister)
	s.Handle(EventChatMessage, s.onChatMessage)
	s.Handle(EventSelectUser, s.onSelectUser)
	s.Handle(EventCloseConversation, s.onCloseConversation)
	s.Handle(EventListConversations, s.onListConversations)
}

func (s *Server) onRegister(rc *RequestContext) {
	var p registerPayload
	if err := rc.Decode(&p); err != nil {
		metrics.RecordDropped(metrics.DropInvalidPayload)
		rc.SendError(CodeInvalidPayload, err.Error())
		return
	}

	id, err := s.resolver.Resolve(identityRequest(p, rc.Client))
	if err != nil {
		if p.Token != "" {
			s.failures.recordFailure(rc.Client.RemoteAddr)
		}
		s.log.Warn().
			Err(err).
			Str("connId", string(rc.Client.Handle)).
			Str("remote", rc.Client.RemoteAddr).
			Msg("registration rejected")
		rc.SendError(authErrorCode(err), err.Error())
		return
	}
	if id.Guest {
		rc.Client.setGuestID(id.ParticipantID)
	}

	ack := RegisteredPayload{
		ParticipantID: id.ParticipantID,
		DisplayName:   id.DisplayName,
		Role:          id.Role,
		Guest:         id.Guest,
	}
	if id.IsCustomer() {
		ack.ConversationID = domain.ConversationIDFor(id.ParticipantID)
	}
	rc.Send(EventRegistered, ack)

	res, err := s.registry.Bind(rc.Client.Handle, id)
	if err != nil {
		s.log.Error().Err(err).Str("connId", string(rc.Client.Handle)).Msg("bind failed")
		rc.SendError(CodeInternal, "registration failed")
		return
	}
	if res.Superseded != "" {
		s.supersede(res.Superseded, id.ParticipantID)
	}
	s.emit(rc, hooks.EventParticipantConnected, map[string]any{
		"participantId": id.ParticipantID,
		"displayName":   id.DisplayName,
		"role":          string(id.Role),
		"guest":         id.Guest,
		"connId":        string(rc.Client.Handle),
	})

	if id.IsCustomer() {
		if _, err := s.router.OpenCustomer(rc.Ctx, id, rc.Client.Handle); err != nil {
			s.routeFailed(rc, err)
		}
	}
}

// supersede tells the displaced connection it lost its participant.
func (s *Server) supersede(old domain.Handle, participantID string) {
	s.dispatcher.SendTo(old, EventSuperseded, SupersededPayload{ParticipantID: participantID})
	if !s.cfg.Chat.SupersededClosed() {
		return
	}
	if c, ok := s.clients.Get(old); ok {
		c.Shutdown(websocket.CloseNormalClosure, "superseded")
	}
}

func (s *Server) onChatMessage(rc *RequestContext) {
	id, ok := rc.Identity()
	if !ok {
		rc.Drop(metrics.DropNotRegistered, domain.ErrNotRegistered)
		return
	}
	if !rc.Client.Allow() {
		rc.Drop(metrics.DropRateLimited, nil)
		return
	}
	var p chatPayload
	if err := rc.Decode(&p); err != nil {
		rc.Drop(metrics.DropInvalidPayload, err)
		return
	}

	if _, err := s.router.Route(rc.Ctx, id, routing.Inbound{To: p.To, Text: p.Text}); err != nil {
		s.routeFailed(rc, err)
	}
}

func (s *Server) onSelectUser(rc *RequestContext) {
	id, p, ok := s.agentConversation(rc)
	if !ok {
		return
	}
	if _, err := s.router.Select(rc.Ctx, id, rc.Client.Handle, p.ConversationID); err != nil {
		s.routeFailed(rc, err)
	}
}

func (s *Server) onCloseConversation(rc *RequestContext) {
	id, p, ok := s.agentConversation(rc)
	if !ok {
		return
	}
	if err := s.router.Close(rc.Ctx, id, p.ConversationID); err != nil {
		s.routeFailed(rc, err)
	}
}

func (s *Server) onListConversations(rc *RequestContext) {
	id, ok := rc.Identity()
	if !ok {
		rc.Drop(metrics.DropNotRegistered, domain.ErrNotRegistered)
		return
	}
	if !id.IsAgent() {
		rc.Drop(metrics.DropUnsupportedRole, domain.ErrUnsupportedRole)
		return
	}
	convs, err := s.router.Conversations(rc.Ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("listing conversations failed")
		return
	}
	if convs == nil {
		convs = []routing.Summary{}
	}
	rc.Send(EventConversationList, ConversationListPayload{Conversations: convs})
}

// agentConversation checks that the sender is a registered agent and decodes
// a conversation target.
func (s *Server) agentConversation(rc *RequestContext) (domain.Identity, conversationPayload, bool) {
	var p conversationPayload
	id, ok := rc.Identity()
	if !ok {
		rc.Drop(metrics.DropNotRegistered, domain.ErrNotRegistered)
		return id, p, false
	}
	if !id.IsAgent() {
		rc.Drop(metrics.DropUnsupportedRole, domain.ErrUnsupportedRole)
		return id, p, false
	}
	if err := rc.Decode(&p); err != nil {
		rc.Drop(metrics.DropInvalidPayload, err)
		return id, p, false
	}
	return id, p, true
}

// routeFailed classifies a router error. Recoverable errors drop the event
// and keep the connection; storage exhaustion may disconnect the sender.
func (s *Server) routeFailed(rc *RequestContext, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownConversation):
		rc.Drop(metrics.DropUnknownConversation, err)
	case errors.Is(err, domain.ErrUnsupportedRole):
		rc.Drop(metrics.DropUnsupportedRole, err)
	case errors.Is(err, domain.ErrStorageExhausted):
		rc.Drop(metrics.DropStorageExhausted, err)
		if s.cfg.Chat.OnExhausted == "disconnect" {
			rc.Client.Shutdown(websocket.ClosePolicyViolation, "storage exhausted")
		}
	default:
		s.log.Error().
			Err(err).
			Str("connId", string(rc.Client.Handle)).
			Str("event", rc.Frame.Event).
			Msg("event failed")
	}
}
