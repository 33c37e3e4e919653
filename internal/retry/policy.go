// Package retry decides whether a failed task attempt should be retried and
// how long to wait before re-dispatching. The policy is a pure decision
// function: it performs no I/O and is deterministic for a fixed random seed.
package retry

import (
	"math/rand"
	"sync"
	"time"
)

// Default backoff constants. Overridable per Policy.
const (
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultMaxDelay  = 30 * time.Second
)

// Decision is the outcome of a retry consultation.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy computes exponential backoff with jitter. The zero value is not
// usable; construct with NewPolicy.
type Policy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPolicy creates a Policy with the default constants and a time-seeded
// jitter source.
func NewPolicy() *Policy {
	return NewSeededPolicy(time.Now().UnixNano())
}

// NewSeededPolicy creates a Policy with a fixed jitter seed. Tests use this
// to make delays reproducible.
func NewSeededPolicy(seed int64) *Policy {
	return &Policy{
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Decide returns whether another attempt is allowed and the backoff delay
// before it. attempts is the number of attempts already made. The delay is
// base * 2^attempts, capped at MaxDelay, plus jitter in [0, delay/4) so
// simultaneous failures don't retry in lockstep.
func (p *Policy) Decide(attempts, maxRetries int) Decision {
	if attempts >= maxRetries {
		return Decision{Retry: false}
	}

	delay := p.BaseDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if jitterRange := int64(delay / 4); jitterRange > 0 {
		p.mu.Lock()
		delay += time.Duration(p.rng.Int63n(jitterRange))
		p.mu.Unlock()
	}

	return Decision{Retry: true, Delay: delay}
}
