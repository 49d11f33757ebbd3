package ratelimit

import (
	"strings"
	"testing"

	"github.com/bbockelm/golang-glidein/config"
)

func TestConfigFromGlidein(t *testing.T) {
	tests := []struct {
		name        string
		config      string
		submit      float64
		submitUser  float64
		queue       float64
		queueClient float64
	}{
		{name: "defaults are unlimited"},
		{
			name: "all limits set",
			config: "SUBMIT_RATE_LIMIT = 2\nSUBMIT_PER_USER_RATE_LIMIT = 0.5\n" +
				"QUEUE_RATE_LIMIT = 20\nQUEUE_PER_USER_RATE_LIMIT = 4\n",
			submit: 2, submitUser: 0.5, queue: 20, queueClient: 4,
		},
		{
			name:   "negative and invalid mean unlimited",
			config: "SUBMIT_RATE_LIMIT = -1\nQUEUE_RATE_LIMIT = lots\n",
		},
		{
			name:   "macros are expanded",
			config: "BASE_RATE = 3\nQUEUE_RATE_LIMIT = $(BASE_RATE)\n",
			queue:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.NewFromReader(strings.NewReader(tt.config))
			if err != nil {
				t.Fatalf("config: %v", err)
			}
			m := ConfigFromGlidein(cfg)
			if got := m.Submit.Stats().GlobalRate; got != tt.submit {
				t.Errorf("submit global = %v, want %v", got, tt.submit)
			}
			if got := m.Submit.Stats().ClientRate; got != tt.submitUser {
				t.Errorf("submit per-client = %v, want %v", got, tt.submitUser)
			}
			if got := m.Queue.Stats().GlobalRate; got != tt.queue {
				t.Errorf("queue global = %v, want %v", got, tt.queue)
			}
			if got := m.Queue.Stats().ClientRate; got != tt.queueClient {
				t.Errorf("queue per-client = %v, want %v", got, tt.queueClient)
			}
		})
	}
}

func TestConfigFromGlideinNil(t *testing.T) {
	m := ConfigFromGlidein(nil)
	if err := m.AllowSubmit("10.0.0.1"); err != nil {
		t.Errorf("nil config should be unlimited: %v", err)
	}
}
