package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTest returns an executor that records sleeps instead of sleeping
// and uses a fixed jitter fraction.
func newTest(jitter float64) (*Executor, *[]time.Duration) {
	var slept []time.Duration
	e := New()
	e.sleep = func(d time.Duration) { slept = append(slept, d) }
	e.randf = func() float64 { return jitter }
	return e, &slept
}

func TestExecute_SucceedsFirstTry(t *testing.T) {
	e, slept := newTest(0)
	calls := 0
	err := e.Execute(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	e, slept := newTest(0)
	calls := 0
	err := e.Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	// 0.8s, then 1.6s
	assert.Equal(t, []time.Duration{800 * time.Millisecond, 1600 * time.Millisecond}, *slept)
}

func TestExecute_ExhaustionReturnsLastError(t *testing.T) {
	e, slept := newTest(0)
	first := errors.New("first")
	last := errors.New("last")
	calls := 0
	err := e.Execute(context.Background(), func() error {
		calls++
		if calls == e.Retries {
			return last
		}
		return first
	})
	assert.Same(t, last, err)
	assert.Equal(t, 5, calls)
	// No sleep after the final attempt.
	assert.Len(t, *slept, 4)
}

func TestExecute_DelayIsCapped(t *testing.T) {
	e, slept := newTest(0)
	err := e.Execute(context.Background(), func() error { return errors.New("x") })
	require.Error(t, err)
	want := []time.Duration{
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		6400 * time.Millisecond,
	}
	assert.Equal(t, want, *slept)

	e.Retries = 7
	*slept = nil
	_ = e.Execute(context.Background(), func() error { return errors.New("x") })
	assert.Equal(t, 8*time.Second, (*slept)[4], "fifth delay hits the cap")
	assert.Equal(t, 8*time.Second, (*slept)[5])
}

func TestExecute_JitterAdded(t *testing.T) {
	e, slept := newTest(0.5)
	calls := 0
	_ = e.Execute(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("x")
		}
		return nil
	})
	assert.Equal(t, 800*time.Millisecond+125*time.Millisecond, (*slept)[0])
}

func TestExecute_ContextCancelStopsRetries(t *testing.T) {
	e, _ := newTest(0)
	ctx, cancel := context.WithCancel(context.Background())
	boom := errors.New("boom")
	calls := 0
	err := e.Execute(ctx, func() error {
		calls++
		cancel()
		return boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ReturnsValue(t *testing.T) {
	e, _ := newTest(0)
	calls := 0
	got, err := Do(context.Background(), e, func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
