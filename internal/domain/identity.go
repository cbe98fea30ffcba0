package domain

import (
	"strings"
	"time"
)

// Role classifies a participant. It is a closed set; unknown role strings
// resolve to RoleOther.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleOther    Role = "other"
)

// ParseRole normalizes a client-declared role string.
// Storefront clients use "user"/"guest" for customers and
// "customer_service"/"support" for agents.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "customer", "user", "guest":
		return RoleCustomer
	case "agent", "customer_service", "support":
		return RoleAgent
	default:
		return RoleOther
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleOther:
		return true
	}
	return false
}

// Identity is the normalized descriptor bound to a connection.
type Identity struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Role          Role   `json:"role"`
	Guest         bool   `json:"guest,omitempty"`
}

// IsCustomer reports whether the identity belongs to a customer.
func (i Identity) IsCustomer() bool { return i.Role == RoleCustomer }

// IsAgent reports whether the identity belongs to a support agent.
func (i Identity) IsAgent() bool { return i.Role == RoleAgent }

// Handle identifies one live transport connection. It is opaque to
// everything except the gateway that issued it.
type Handle string

// Binding pairs a handle with the identity registered on it.
type Binding struct {
	Handle      Handle    `json:"connId"`
	Identity    Identity  `json:"identity"`
	ConnectedAt time.Time `json:"connectedAt"`
}
