// Package ratelimit throttles the web surface. Each Limiter combines an
// optional global token bucket with optional per-client buckets.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// anonymousClient is the bucket key for requests without a client key.
const anonymousClient = "anonymous"

// Error is returned when a request is throttled.
type Error struct {
	Scope  string
	Client string
}

func (e *Error) Error() string {
	if e.Client == "" {
		return fmt.Sprintf("%s rate limit exceeded", e.Scope)
	}
	return fmt.Sprintf("%s rate limit exceeded for %s", e.Scope, e.Client)
}

// IsRateLimitError reports whether err is, or wraps, an *Error.
func IsRateLimitError(err error) bool {
	var rlErr *Error
	return errors.As(err, &rlErr)
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter applies a global rate and a per-client rate, both in requests per
// second. A rate of 0 disables that limit. Bursts are twice the rate, at least 1.
type Limiter struct {
	scope       string
	global      *rate.Limiter
	clientRate  float64
	clientBurst int

	mu      sync.Mutex
	clients map[string]*clientBucket
	now     func() time.Time
}

// NewLimiter creates a Limiter. scope names it in errors ("submit", "queue").
func NewLimiter(scope string, globalRate, clientRate float64) *Limiter {
	l := &Limiter{
		scope:      scope,
		clientRate: clientRate,
		clients:    make(map[string]*clientBucket),
		now:        time.Now,
	}
	if globalRate > 0 {
		l.global = rate.NewLimiter(rate.Limit(globalRate), burstFor(globalRate))
	}
	if clientRate > 0 {
		l.clientBurst = burstFor(clientRate)
	}
	return l
}

func burstFor(r float64) int {
	if b := int(r * 2); b > 1 {
		return b
	}
	return 1
}

func (l *Limiter) bucket(client string) *rate.Limiter {
	if l.clientRate <= 0 {
		return nil
	}
	if client == "" {
		client = anonymousClient
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(l.clientRate), l.clientBurst)}
		l.clients[client] = b
	}
	b.lastSeen = l.now()
	return b.limiter
}

// Allow consumes a token for client without blocking.
func (l *Limiter) Allow(client string) error {
	if l.global != nil && !l.global.Allow() {
		return &Error{Scope: l.scope}
	}
	if b := l.bucket(client); b != nil && !b.Allow() {
		return &Error{Scope: l.scope, Client: client}
	}
	return nil
}

// Wait blocks until client may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, client string) error {
	if l.global != nil {
		if err := l.global.Wait(ctx); err != nil {
			return fmt.Errorf("%s rate limit wait: %w", l.scope, err)
		}
	}
	if b := l.bucket(client); b != nil {
		if err := b.Wait(ctx); err != nil {
			return fmt.Errorf("%s rate limit wait for %s: %w", l.scope, client, err)
		}
	}
	return nil
}

// Prune forgets clients not seen for idle and returns how many were dropped.
func (l *Limiter) Prune(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for client, b := range l.clients {
		if b.lastSeen.Before(cutoff) {
			delete(l.clients, client)
			n++
		}
	}
	return n
}

// Stats describes a Limiter's configuration and state.
type Stats struct {
	GlobalRate   float64
	GlobalBurst  int
	GlobalTokens float64
	ClientRate   float64
	ClientBurst  int
	Clients      int
}

// Stats returns the limiter's current state.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	s := Stats{ClientRate: l.clientRate, ClientBurst: l.clientBurst, Clients: len(l.clients)}
	l.mu.Unlock()
	if l.global != nil {
		s.GlobalRate = float64(l.global.Limit())
		s.GlobalBurst = l.global.Burst()
		s.GlobalTokens = l.global.Tokens()
	}
	return s
}

// Manager holds the limiters for the two expensive endpoints: submissions
// (each runs condor_submit) and queue listings (each runs condor_q).
type Manager struct {
	Submit *Limiter
	Queue  *Limiter
}

// NewManager creates a Manager from the four rates.
func NewManager(submitGlobal, submitClient, queueGlobal, queueClient float64) *Manager {
	return &Manager{
		Submit: NewLimiter("submit", submitGlobal, submitClient),
		Queue:  NewLimiter("queue", queueGlobal, queueClient),
	}
}

// AllowSubmit consumes a submission token for client.
func (m *Manager) AllowSubmit(client string) error {
	return m.Submit.Allow(client)
}

// AllowQueue consumes a queue listing token for client.
func (m *Manager) AllowQueue(client string) error {
	return m.Queue.Allow(client)
}

// Prune drops idle client buckets from both limiters.
func (m *Manager) Prune(idle time.Duration) int {
	return m.Submit.Prune(idle) + m.Queue.Prune(idle)
}
