package retry

import (
	"context"
	"math/rand"
	"time"

	"AlphaPull/internal/domain/models"
)

// State enumerates the retry lifecycle. Transitions are computed by the
// pure Next function so the control flow is testable without timers.
type State int

const (
	Attempting State = iota
	Backoff
	Succeeded
	Exhausted
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case Backoff:
		return "backoff"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Policy bounds the retry loop: base delay doubled per attempt, capped,
// with a jitter fraction applied at sleep time.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // 0..1 fraction of the delay
}

// DefaultPolicy matches the upstream providers' tolerance: five attempts
// starting at 500ms, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, Jitter: 0.2}
}

// Step is one point in the retry state machine.
type Step struct {
	State   State
	Attempt int // attempts completed
	Delay   time.Duration
}

// Next is the pure transition function. Given the step whose attempt just
// finished with err, it returns the following step. Permanent errors and
// attempt exhaustion both terminate in Exhausted; nil err terminates in
// Succeeded.
func (p Policy) Next(prev Step, err error) Step {
	attempt := prev.Attempt + 1
	if err == nil {
		return Step{State: Succeeded, Attempt: attempt}
	}
	if !models.IsTransient(err) || attempt >= p.MaxAttempts {
		return Step{State: Exhausted, Attempt: attempt}
	}
	return Step{State: Backoff, Attempt: attempt, Delay: p.delay(attempt)}
}

// delay is base * 2^(attempt-1), capped at MaxDelay.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// jittered spreads the delay by ±Jitter to avoid thundering herds.
func (p Policy) jittered(d time.Duration) time.Duration {
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * p.Jitter
	return time.Duration(float64(d) - spread/2 + rand.Float64()*spread)
}

// Do runs fn under the policy, sleeping between attempts. onRetry, if
// set, observes each backoff step. The last error is returned when the
// machine ends Exhausted; ctx cancellation cuts the wait short.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, onRetry func(Step, error)) error {
	step := Step{State: Attempting}
	for {
		err := fn(ctx)
		step = p.Next(step, err)
		switch step.State {
		case Succeeded:
			return nil
		case Exhausted:
			return err
		case Backoff:
			if onRetry != nil {
				onRetry(step, err)
			}
			t := time.NewTimer(p.jittered(step.Delay))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
}
