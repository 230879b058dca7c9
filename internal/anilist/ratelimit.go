package anilist

import (
	"os"
	"strconv"

	"golang.org/x/time/rate"
)

// newLimiter creates a rate limiter, letting ANILIST_RPS and ANILIST_BURST
// override the configured values.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		rps = 1.5
	}
	if burst <= 0 {
		burst = 5
	}
	if v := os.Getenv("ANILIST_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}
	if v := os.Getenv("ANILIST_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
