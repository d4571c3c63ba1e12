package workflow

import (
	"context"
	"errors"
	"time"
)

// ErrNotCompleted is returned when the run for a commit has not finished.
var ErrNotCompleted = errors.New("workflow run not completed")

// CheckFunc inspects run state once. done is false while the run is pending.
type CheckFunc func(ctx context.Context) (m *Match, done bool)

// Waiter decides how long to wait for a pending run.
type Waiter interface {
	Wait(ctx context.Context, check CheckFunc) (*Match, error)
}

// Once checks a single time and defers pending runs to the next scheduled
// invocation.
type Once struct{}

// Wait implements Waiter.
func (Once) Wait(ctx context.Context, check CheckFunc) (*Match, error) {
	m, done := check(ctx)
	if !done {
		return nil, ErrNotCompleted
	}
	return m, nil
}

// Poll re-checks every Interval up to MaxAttempts times.
type Poll struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPoll waits up to 30 minutes.
var DefaultPoll = Poll{Interval: 30 * time.Second, MaxAttempts: 60}

// Wait implements Waiter.
func (p Poll) Wait(ctx context.Context, check CheckFunc) (*Match, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		m, done := check(ctx)
		if done {
			return m, nil
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, ErrNotCompleted
}
