package core

import "time"

// RateBudgetSnapshot captures token bucket state at one observation point.
type RateBudgetSnapshot struct {
	Capacity    int           `json:"capacity"`
	Tokens      int           `json:"tokens"`
	RefillRate  int           `json:"refill_rate"`
	Interval    time.Duration `json:"interval"`
	LastRefill  time.Time     `json:"last_refill"`
	PausedUntil *time.Time    `json:"paused_until,omitempty"`
}
