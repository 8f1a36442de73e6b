// Package reliability holds the retry policy shared by the platform pollers.
package reliability

import "time"

// IsRetryableHTTPStatus classifies transient HTTP status codes worth
// retrying on the next poll.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Backoff computes capped exponential delays for a failure streak. Not safe
// for concurrent use; each poller owns its own.
type Backoff struct {
	base    time.Duration
	cap     time.Duration
	attempt int
}

func NewBackoff(base, cap time.Duration) *Backoff {
	return &Backoff{base: base, cap: cap}
}

// Next returns the delay for the current failure and advances the streak.
// The first failure waits base, each further failure doubles up to cap.
func (b *Backoff) Next() time.Duration {
	d := b.base
	for i := 0; i < b.attempt; i++ {
		d *= 2
		if d >= b.cap {
			d = b.cap
			break
		}
	}
	b.attempt++
	return d
}

// Reset clears the failure streak after a success.
func (b *Backoff) Reset() {
	b.attempt = 0
}
