// Package auth resolves the identity a connection registers with, either
// from a signed token or as a guest.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/soyeahso/deskchat/internal/domain"
)

// Resolution errors.
var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrMissingClaim       = errors.New("missing required claim")
	ErrTokensDisabled     = errors.New("token authentication is not configured")
	ErrGuestsDisabled     = errors.New("guest access is disabled")
	ErrAgentTokenRequired = errors.New("agents must register with a token")
)

// Claims are the JWT claims deskchat reads. The subject is the participant id.
type Claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Request is what a client presents at registration.
type Request struct {
	Token         string
	ParticipantID string
	DisplayName   string
	Role          string
	// GuestID is the guest id already issued to this connection, if any.
	GuestID string
}

// Options configure a Resolver.
type Options struct {
	Secret        []byte
	AllowGuests   bool
	TrustDeclared bool
}

// Resolver turns registration requests into identities.
type Resolver struct {
	opts Options
}

// NewResolver creates a resolver.
func NewResolver(opts Options) *Resolver {
	return &Resolver{opts: opts}
}

// Resolve returns the identity for req. A valid token always wins. Without
// one, declared identities are accepted only when TrustDeclared is set, and
// everyone else becomes a guest customer.
func (r *Resolver) Resolve(req Request) (domain.Identity, error) {
	if req.Token != "" {
		return r.fromToken(req)
	}

	declared := domain.ParseRole(req.Role)
	if r.opts.TrustDeclared && req.ParticipantID != "" {
		return domain.Identity{
			ParticipantID: req.ParticipantID,
			DisplayName:   displayName(req.DisplayName, req.ParticipantID),
			Role:          declared,
		}, nil
	}

	if declared == domain.RoleAgent {
		return domain.Identity{}, ErrAgentTokenRequired
	}
	if !r.opts.AllowGuests {
		return domain.Identity{}, ErrGuestsDisabled
	}

	id := req.GuestID
	if id == "" {
		id = NewGuestID()
	}
	return domain.Identity{
		ParticipantID: id,
		DisplayName:   displayName(req.DisplayName, "Guest"),
		Role:          domain.RoleCustomer,
		Guest:         true,
	}, nil
}

func (r *Resolver) fromToken(req Request) (domain.Identity, error) {
	if len(r.opts.Secret) == 0 {
		return domain.Identity{}, ErrTokensDisabled
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(req.Token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.opts.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, ErrExpiredToken
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return domain.Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return domain.Identity{
		ParticipantID: claims.Subject,
		DisplayName:   displayName(claims.Name, displayName(req.DisplayName, claims.Subject)),
		Role:          domain.ParseRole(claims.Role),
	}, nil
}

// Issue signs a token for a participant. A zero ttl issues a token that
// never expires.
func (r *Resolver) Issue(participantID, name string, role domain.Role, ttl time.Duration) (string, error) {
	if len(r.opts.Secret) == 0 {
		return "", ErrTokensDisabled
	}
	now := time.Now()
	claims := Claims{
		Name: name,
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  participantID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.opts.Secret)
}

// NewGuestID issues a session-scoped guest participant id.
func NewGuestID() string {
	return "guest-" + uuid.New().String()
}

func displayName(name, fallback string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return fallback
}
