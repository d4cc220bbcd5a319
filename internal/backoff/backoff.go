// Package backoff wraps fallible remote calls with bounded
// exponential-backoff retry. Every remote call in the application goes
// through an Executor; on exhaustion the last error is returned
// unchanged so callers see the true remote failure.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

const (
	defaultRetries = 5
	defaultBase    = 800 * time.Millisecond
	defaultCap     = 8 * time.Second
	jitterSpan     = 250 * time.Millisecond
)

// Executor retries an operation with exponentially increasing delays.
// The zero value is not usable; call New.
type Executor struct {
	Retries int
	Base    time.Duration
	Cap     time.Duration

	sleep func(time.Duration)
	randf func() float64
}

// New returns an Executor with the standard retry policy:
// 5 attempts, delays min(8s, 0.8s * 2^attempt) plus up to 250ms of jitter.
func New() *Executor {
	return &Executor{
		Retries: defaultRetries,
		Base:    defaultBase,
		Cap:     defaultCap,
		sleep:   time.Sleep,
		randf:   rand.Float64,
	}
}

// delay computes the wait before retry attempt i (0-based).
func (e *Executor) delay(i int) time.Duration {
	d := time.Duration(float64(e.Base) * math.Pow(2, float64(i)))
	if d > e.Cap {
		d = e.Cap
	}
	return d + time.Duration(e.randf()*float64(jitterSpan))
}

// Execute runs op, retrying on any error up to the attempt bound.
// A cancelled context stops further retries and returns the last error.
// TODO: classify googleapi errors so terminal failures (4xx other than
// 429) do not burn the full retry budget.
func (e *Executor) Execute(ctx context.Context, op func() error) error {
	var last error
	for i := 0; i < e.Retries; i++ {
		last = op()
		if last == nil {
			return nil
		}
		if i == e.Retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return last
		default:
		}
		e.sleep(e.delay(i))
	}
	return last
}

// Do runs a value-returning operation through the executor.
func Do[T any](ctx context.Context, e *Executor, op func() (T, error)) (T, error) {
	var out T
	err := e.Execute(ctx, func() error {
		var err error
		out, err = op()
		return err
	})
	return out, err
}
