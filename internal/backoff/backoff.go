// Package backoff implements the capped exponential backoff with full
// jitter that the API and SPV back-ends' retry loops use, as a
// github.com/cenkalti/backoff/v4 BackOff so callers drive it with the
// library's Retry/RetryNotify helpers instead of hand-rolled sleep loops.
package backoff

import (
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// FullJitter implements the AWS "full jitter" formula:
// sleep = random(0, min(cap, base*2^attempt)), growing the ceiling on every
// call until Reset.
type FullJitter struct {
	Base time.Duration
	Cap  time.Duration

	attempt int
}

var _ backoff.BackOff = (*FullJitter)(nil)

// New returns a FullJitter backoff starting at base, capped at cap.
func New(base, cap time.Duration) *FullJitter {
	return &FullJitter{Base: base, Cap: cap}
}

// NextBackOff returns the next delay and advances the attempt counter.
func (f *FullJitter) NextBackOff() time.Duration {
	ceiling := float64(f.Base) * math.Pow(2, float64(f.attempt))
	if ceiling > float64(f.Cap) || ceiling <= 0 {
		ceiling = float64(f.Cap)
	}
	f.attempt++
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

// Reset clears the attempt counter. backoff.Retry calls it once, before the
// first attempt.
func (f *FullJitter) Reset() {
	f.attempt = 0
}
