package anilist

import (
	"errors"

	gobreaker "github.com/sony/gobreaker/v2"

	"anirec/internal/logging"
	"anirec/internal/metrics"
)

const breakerName = "anilist"

// newBreaker opens after 5 consecutive failed fetches. Client-side errors
// (unknown user, bad query) do not count as failures.
func newBreaker(settings gobreaker.Settings) *gobreaker.CircuitBreaker[[]byte] {
	settings.Name = breakerName
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 }
	}
	settings.IsSuccessful = func(err error) bool {
		var apiErr *APIError
		return err == nil || (errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != 429)
	}
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	return gobreaker.NewCircuitBreaker[[]byte](settings)
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return -1
}
