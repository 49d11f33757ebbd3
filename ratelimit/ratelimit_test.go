package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	tests := []struct {
		name        string
		globalRate  float64
		clientRate  float64
		clients     []string
		expectError []bool
	}{
		{
			name:        "unlimited allows all",
			clients:     []string{"10.0.0.1", "10.0.0.1", "10.0.0.2", "10.0.0.2"},
			expectError: []bool{false, false, false, false},
		},
		{
			name:        "global limit blocks after burst",
			globalRate:  1,
			clients:     []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"},
			expectError: []bool{false, false, true},
		},
		{
			name:        "per-client limit is independent",
			clientRate:  1,
			clients:     []string{"10.0.0.1", "10.0.0.1", "10.0.0.1", "10.0.0.2", "10.0.0.2"},
			expectError: []bool{false, false, true, false, false},
		},
		{
			name:        "empty client shares one bucket",
			clientRate:  1,
			clients:     []string{"", "", ""},
			expectError: []bool{false, false, true},
		},
		{
			name:        "fractional rate still allows one",
			clientRate:  0.1,
			clients:     []string{"10.0.0.1", "10.0.0.1"},
			expectError: []bool{false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimiter("submit", tt.globalRate, tt.clientRate)
			for i, client := range tt.clients {
				err := l.Allow(client)
				if (err != nil) != tt.expectError[i] {
					t.Errorf("request %d (client=%q): error = %v, want error=%v", i, client, err, tt.expectError[i])
				}
				if err != nil && !IsRateLimitError(err) {
					t.Errorf("request %d: %v is not a rate limit error", i, err)
				}
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	if got := (&Error{Scope: "queue"}).Error(); got != "queue rate limit exceeded" {
		t.Errorf("global error = %q", got)
	}
	if got := (&Error{Scope: "submit", Client: "10.0.0.1"}).Error(); got != "submit rate limit exceeded for 10.0.0.1" {
		t.Errorf("client error = %q", got)
	}
	if IsRateLimitError(fmt.Errorf("other")) {
		t.Error("plain error reported as rate limit error")
	}
	if !IsRateLimitError(fmt.Errorf("wrapped: %w", &Error{Scope: "submit"})) {
		t.Error("wrapped rate limit error not detected")
	}
}

func TestLimiterWait(t *testing.T) {
	l := NewLimiter("queue", 0, 1)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.Wait(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("Wait %d within burst failed: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "10.0.0.1"); err == nil {
		t.Error("Wait should fail when the deadline is shorter than the refill")
	}
}

func TestLimiterPrune(t *testing.T) {
	l := NewLimiter("submit", 0, 5)
	start := time.Now()
	l.now = func() time.Time { return start }
	_ = l.Allow("10.0.0.1")

	l.now = func() time.Time { return start.Add(time.Minute) }
	_ = l.Allow("10.0.0.2")

	if n := l.Prune(30 * time.Second); n != 1 {
		t.Errorf("Prune removed %d clients, want 1", n)
	}
	if s := l.Stats(); s.Clients != 1 {
		t.Errorf("Clients = %d after prune, want 1", s.Clients)
	}
}

func TestLimiterStats(t *testing.T) {
	s := NewLimiter("submit", 10, 2.5).Stats()
	if s.GlobalRate != 10 || s.GlobalBurst != 20 {
		t.Errorf("global stats = %+v", s)
	}
	if s.ClientRate != 2.5 || s.ClientBurst != 5 {
		t.Errorf("client stats = %+v", s)
	}

	s = NewLimiter("submit", 0, 0).Stats()
	if s.GlobalRate != 0 || s.ClientBurst != 0 || s.Clients != 0 {
		t.Errorf("unlimited stats = %+v", s)
	}
}

func TestManagerScopesAreIndependent(t *testing.T) {
	m := NewManager(0, 1, 0, 1)
	for i := 0; i < 2; i++ {
		if err := m.AllowSubmit("10.0.0.1"); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := m.AllowSubmit("10.0.0.1"); err == nil {
		t.Error("third submission should be throttled")
	}
	if err := m.AllowQueue("10.0.0.1"); err != nil {
		t.Errorf("queue listing throttled by submissions: %v", err)
	}
}
