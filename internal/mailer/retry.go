package mailer

import (
	"math/rand"
	"time"
)

// Retry delays between send attempts.
// Attempt 2 waits 1s, attempt 3 waits 5s, later attempts wait 30s.
var retryDelays = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

// JitterFactor is the ±fraction of jitter applied to delays.
const JitterFactor = 0.2

// NextRetryDelay returns the wait before the next attempt with ±20% jitter.
// failures is the number of failed attempts so far, starting at 1.
func NextRetryDelay(failures int) time.Duration {
	i := failures - 1
	if i < 0 {
		i = 0
	}
	if i >= len(retryDelays) {
		i = len(retryDelays) - 1
	}

	base := retryDelays[i]
	jitterRange := float64(base) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(base) + jitter)
}

// IsExhausted reports whether attempts has reached maxAttempts.
func IsExhausted(attempts, maxAttempts int) bool {
	return attempts >= maxAttempts
}
