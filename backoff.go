package relayws

import (
	"math"
	"time"
)

// BackoffCalculator maps the count of consecutive dirty closes to the reconnect delay.
type BackoffCalculator func(retryCount int) time.Duration

// StepBackoff widens the delay in plateaus rather than exponentially, bounding the load a
// mass reconnection puts on the relay.
func StepBackoff(retryCount int) time.Duration {
	switch {
	case retryCount <= 5:
		return time.Second
	case retryCount <= 10:
		return 5 * time.Second
	case retryCount <= 20:
		return 7 * time.Second
	default:
		return 10 * time.Second
	}
}

// maxExponentialBackoff caps ExponentialBackoffSeconds.
const maxExponentialBackoff = 5 * time.Minute

// ExponentialBackoff returns (2^n - 1) / 2, the mean delay in slots after n collisions.
func ExponentialBackoff(retryCount int) float64 {
	return (math.Pow(2.0, float64(retryCount)) - 1) / 2
}

// ExponentialBackoffSeconds is a BackoffCalculator growing as ExponentialBackoff seconds,
// capped at five minutes. It suits relays that prefer fewer retries over a fast recovery.
func ExponentialBackoffSeconds(retryCount int) time.Duration {
	secs := ExponentialBackoff(retryCount)
	if secs >= maxExponentialBackoff.Seconds() {
		return maxExponentialBackoff
	}
	return time.Duration(secs) * time.Second
}

var _ BackoffCalculator = ExponentialBackoffSeconds
