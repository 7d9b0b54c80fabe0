package conn

import (
	"math/rand"
	"time"
)

// backoff grows a reconnect delay multiplicatively with jitter. The
// initial delay is the configured reconnect delay; growth is capped at
// maxBackoffFactor times that.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

const maxBackoffFactor = 30

func newBackoff(initial time.Duration) *backoff {
	return &backoff{
		initial: initial,
		max:     initial * maxBackoffFactor,
		current: initial,
	}
}

// next returns the delay to wait before the upcoming attempt and advances
// the schedule. Jitter: ±20%.
func (b *backoff) next() time.Duration {
	jitter := float64(b.current) * 0.2 * (rand.Float64()*2 - 1)
	d := time.Duration(float64(b.current) + jitter)

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// reset restores the initial delay after a successful connection.
func (b *backoff) reset() {
	b.current = b.initial
}
