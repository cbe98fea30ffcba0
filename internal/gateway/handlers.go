package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/soyeahso/deskchat/internal/domain"
	"github.com/soyeahso/deskchat/internal/metrics"
)

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth reports liveness only.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// RequestHandler processes one inbound event from a client.
type RequestHandler func(rc *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Identity returns the identity bound to the client's connection.
func (rc *RequestContext) Identity() (domain.Identity, bool) {
	return rc.Server.registry.Lookup(rc.Client.Handle)
}

// Decode unmarshals and validates the event payload into target.
func (rc *RequestContext) Decode(target any) error {
	return decodePayload(rc.Frame.Payload, target)
}

// Send queues an event for this client only.
func (rc *RequestContext) Send(event string, payload any) {
	if !rc.Server.dispatcher.SendTo(rc.Client.Handle, event, payload) {
		rc.Server.log.Warn().
			Str("connId", string(rc.Client.Handle)).
			Str("event", event).
			Msg("failed to queue reply")
	}
}

// SendError queues an error event for this client.
func (rc *RequestContext) SendError(code, message string) {
	rc.Send(EventError, ErrorShape{Code: code, Message: message})
}

// Drop records a silently discarded event.
func (rc *RequestContext) Drop(reason string, err error) {
	metrics.RecordDropped(reason)
	ev := rc.Server.log.Warn().
		Str("connId", string(rc.Client.Handle)).
		Str("event", rc.Frame.Event).
		Str("reason", reason)
	if id, ok := rc.Identity(); ok {
		ev = ev.Str("participantId", id.ParticipantID)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("event dropped")
}
