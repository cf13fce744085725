// Package reconnect decides whether and when a dropped connection is retried.
package reconnect

import (
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Decision is the outcome of consulting a Policy.
type Decision struct {
	GiveUp bool
	Delay  time.Duration
}

func (d Decision) String() string {
	if d.GiveUp {
		return "give up"
	}
	return fmt.Sprintf("retry after %s", d.Delay)
}

// RetryAfter returns a retry decision.
func RetryAfter(d time.Duration) Decision { return Decision{Delay: d} }

// GiveUp is the terminal decision.
var GiveUp = Decision{GiveUp: true}

// Policy maps the number of retries already issued to a decision.
// The caller increments its counter once for every retry decision.
type Policy interface {
	Decide(attempts int) Decision
	MaxAttempts() int
}

// Decide is the deterministic rule: give up once attempts reaches max,
// otherwise wait base * 2^attempts.
func Decide(attempts, maxAttempts int, base time.Duration) Decision {
	if attempts >= maxAttempts {
		return GiveUp
	}
	return RetryAfter(exponential(base, attempts))
}

func exponential(base time.Duration, attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	f := float64(base) * math.Pow(2, float64(attempts))
	if f >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f)
}

// Exponential is the default Policy.
type Exponential struct {
	Max  int
	Base time.Duration
}

func (p Exponential) Decide(attempts int) Decision { return Decide(attempts, p.Max, p.Base) }
func (p Exponential) MaxAttempts() int             { return p.Max }

// Jittered spreads retries of many clients around the exponential curve.
// Delays come from backoff.ExponentialBackOff with the given randomization
// factor; the give-up rule is the same as Exponential.
type Jittered struct {
	Max         int
	Base        time.Duration
	Factor      float64
	MaxInterval time.Duration
}

func (p Jittered) MaxAttempts() int { return p.Max }

func (p Jittered) Decide(attempts int) Decision {
	if attempts >= p.Max {
		return GiveUp
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.Multiplier = 2
	b.RandomizationFactor = p.Factor
	b.MaxElapsedTime = 0
	b.MaxInterval = p.MaxInterval
	if b.MaxInterval <= 0 {
		b.MaxInterval = exponential(p.Base, p.Max)
	}
	b.Reset()

	var d time.Duration
	for i := 0; i <= attempts; i++ {
		d = b.NextBackOff()
	}
	if d == backoff.Stop {
		return GiveUp
	}
	return RetryAfter(d)
}

// New picks Jittered when jitter is positive, Exponential otherwise.
func New(maxAttempts int, base time.Duration, jitter float64) Policy {
	if jitter > 0 {
		return Jittered{Max: maxAttempts, Base: base, Factor: jitter}
	}
	return Exponential{Max: maxAttempts, Base: base}
}
