package rate_limiter

import (
	"math"
	"time"

	"github/martinmaurice/quota/pkg/config"
	"github/martinmaurice/quota/pkg/enum"
)

// Result is the outcome of a single CheckLimit call. A denied result always
// has RetryAfterSeconds >= 1.
type Result struct {
	Allowed           bool  `json:"allowed"`
	Count             int64 `json:"count"`
	Limit             int64 `json:"limit"`
	RetryAfterSeconds int   `json:"retry_after"`
}

type Status struct {
	Action         string `json:"action"`
	SubjectID      int    `json:"subject_id"`
	Count          int64  `json:"count"`
	Limit          int64  `json:"limit"`
	Remaining      int64  `json:"remaining"`
	ResetInSeconds int    `json:"reset_in_seconds"`
}

type Policy struct {
	Window    time.Duration
	KeyPrefix string
	Limits    map[enum.Action]int64
}

func PolicyFromConfig(cfg config.RateLimitsConfig) Policy {
	limits := make(map[enum.Action]int64, len(cfg.Limits))
	for action, limit := range cfg.Limits {
		limits[action] = limit
	}

	return Policy{
		Window:    cfg.Window,
		KeyPrefix: cfg.KeyPrefix,
		Limits:    limits,
	}
}

// DefaultPolicy is 20 attempts and 20 completions per 15 minutes.
func DefaultPolicy() Policy {
	return Policy{
		Window:    config.DefaultWindow,
		KeyPrefix: config.DefaultKeyPrefix,
		Limits: map[enum.Action]int64{
			enum.Attempt:  config.DefaultLimit,
			enum.Complete: config.DefaultLimit,
		},
	}
}

// windowSeconds is never below 1: an EXPIRE of 0 would delete the counter.
func (p Policy) windowSeconds() int {
	return max(int(math.Ceil(p.Window.Seconds())), 1)
}

func (p Policy) windowTTL() time.Duration {
	return time.Duration(p.windowSeconds()) * time.Second
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
