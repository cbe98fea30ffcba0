package gateway

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/soyeahso/deskchat/internal/auth"
)

// authErrorCode maps an identity resolution failure to the error code sent
// to the client.
func authErrorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return CodeTokenExpired
	case errors.Is(err, auth.ErrGuestsDisabled):
		return CodeGuestsDisabled
	case errors.Is(err, auth.ErrAgentTokenRequired):
		return CodeAgentTokenRequired
	default:
		return CodeUnauthorized
	}
}

// identityRequest builds the resolver input for a register event on c.
func identityRequest(p registerPayload, c *Client) auth.Request {
	return auth.Request{
		Token:         p.Token,
		ParticipantID: p.ParticipantID,
		DisplayName:   p.DisplayName,
		Role:          p.Role,
		GuestID:       c.GuestID(),
	}
}

// failureLimiter tracks failed registrations per IP so a client cannot
// brute-force tokens by reconnecting.
type failureLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	window   time.Duration
	maxFails int
	maxIPs   int
	now      func() time.Time
}

const (
	failureWindow   = 5 * time.Minute
	failureMaxFails = 10
	failureMaxIPs   = 10000
)

func newFailureLimiter() *failureLimiter {
	return &failureLimiter{
		failures: make(map[string][]time.Time),
		window:   failureWindow,
		maxFails: failureMaxFails,
		maxIPs:   failureMaxIPs,
		now:      time.Now,
	}
}

func hostOf(remoteAddr string) string {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		return remoteAddr
	}
	return host
}

// recent returns the failures for host inside the window, pruning the rest.
// Callers hold l.mu.
func (l *failureLimiter) recent(host string) []time.Time {
	cutoff := l.now().Add(-l.window)
	times := l.failures[host]
	filtered := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = filtered
	return filtered
}

func (l *failureLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(hostOf(remoteAddr))) < l.maxFails
}

func (l *failureLimiter) recordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.failures[host]; !exists && len(l.failures) >= l.maxIPs {
		var oldestIP string
		var oldestTime time.Time
		for ip, times := range l.failures {
			if len(times) > 0 && (oldestIP == "" || times[0].Before(oldestTime)) {
				oldestIP = ip
				oldestTime = times[0]
			}
		}
		if oldestIP != "" {
			delete(l.failures, oldestIP)
		}
	}
	l.failures[host] = append(l.failures[host], l.now())
}

// prune drops every host whose failures have aged out.
func (l *failureLimiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for host := range l.failures {
		l.recent(host)
	}
}
