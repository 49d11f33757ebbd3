package ratelimit

import (
	"github.com/bbockelm/golang-glidein/config"
)

// Configuration keys, all in requests per second. Unset, 0, negative or
// unparsable values mean unlimited.
const (
	KeySubmitRate       = "SUBMIT_RATE_LIMIT"
	KeySubmitClientRate = "SUBMIT_PER_USER_RATE_LIMIT"
	KeyQueueRate        = "QUEUE_RATE_LIMIT"
	KeyQueueClientRate  = "QUEUE_PER_USER_RATE_LIMIT"
)

// ConfigFromGlidein builds a Manager from configuration.
func ConfigFromGlidein(cfg *config.Config) *Manager {
	return NewManager(
		rateParam(cfg, KeySubmitRate),
		rateParam(cfg, KeySubmitClientRate),
		rateParam(cfg, KeyQueueRate),
		rateParam(cfg, KeyQueueClientRate),
	)
}

func rateParam(cfg *config.Config, key string) float64 {
	if cfg == nil {
		return 0
	}
	if v := cfg.GetFloat(key, 0); v > 0 {
		return v
	}
	return 0
}
