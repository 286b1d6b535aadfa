package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AlphaPull/internal/domain/models"
)

func TestNextSucceeds(t *testing.T) {
	p := DefaultPolicy()
	step := p.Next(Step{State: Attempting}, nil)
	assert.Equal(t, Succeeded, step.State)
	assert.Equal(t, 1, step.Attempt)
}

func TestNextBacksOffOnTransient(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	err := models.TransientSource("test", errors.New("boom"))

	step := p.Next(Step{State: Attempting}, err)
	require.Equal(t, Backoff, step.State)
	assert.Equal(t, 100*time.Millisecond, step.Delay)

	step = p.Next(step, err)
	require.Equal(t, Backoff, step.State)
	assert.Equal(t, 200*time.Millisecond, step.Delay)

	// Third attempt exhausts the budget.
	step = p.Next(step, err)
	assert.Equal(t, Exhausted, step.State)
	assert.Equal(t, 3, step.Attempt)
}

func TestNextDelayIsCapped(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	err := models.TransientSource("test", errors.New("boom"))
	step := Step{State: Attempting}
	for i := 0; i < 5; i++ {
		step = p.Next(step, err)
		require.Equal(t, Backoff, step.State)
	}
	assert.Equal(t, 4*time.Second, step.Delay)
}

func TestNextPermanentErrorIsNotRetried(t *testing.T) {
	p := DefaultPolicy()
	step := p.Next(Step{State: Attempting}, models.PermanentSource("test", errors.New("bad symbol")))
	assert.Equal(t, Exhausted, step.State)
	assert.Equal(t, 1, step.Attempt)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return models.TransientSource("test", errors.New("flaky"))
		}
		return nil
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	boom := models.TransientSource("test", errors.New("down"))
	calls := 0
	var steps []Step
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return boom
	}, func(s Step, _ error) { steps = append(steps, s) })
	assert.Equal(t, boom, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, steps, 1)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, p, func(ctx context.Context) error {
		return models.TransientSource("test", errors.New("down"))
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
