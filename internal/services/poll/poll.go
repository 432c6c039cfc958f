package poll

import (
	"context"
	"errors"
	"time"
)

// Config controls polling behavior.
type Config struct {
	// Interval is the fixed delay between two polls.
	// If zero or negative, DefaultInterval is used.
	Interval time.Duration

	// Timeout bounds the total time spent polling, measured from the first poll.
	// If zero or negative, DefaultTimeout is used.
	Timeout time.Duration

	// Now allows tests to supply a fake clock. If nil, time.Now is used.
	Now func() time.Time

	// Sleeper allows tests to override sleeping. If nil, a timer/select is used
	// so that ctx cancellation interrupts the wait.
	Sleeper func(time.Duration)
}

const (
	DefaultInterval = 1 * time.Second
	DefaultTimeout  = 60 * time.Second
)

// ErrTimeout is returned by Until when the timeout elapses before op reports done.
var ErrTimeout = errors.New("polling timed out")

// Until calls op at a fixed interval until it reports done, returns an error,
// or the timeout elapses. There is no backoff and no jitter. The elapsed time
// is checked only after a non-terminal poll, so a poll that finishes the work
// is never discarded because of the deadline.
func Until(ctx context.Context, cfg Config, op func(attempt int) (bool, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	start := now()
	for attempt := 0; ; attempt++ {
		// Honor cancellation before each poll.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		done, err := op(attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if now().Sub(start) >= timeout {
			return ErrTimeout
		}

		if cfg.Sleeper != nil {
			cfg.Sleeper(interval)
			continue
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
