package imagegen

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTimeout is returned when a job is still pending after the last poll.
var ErrTimeout = errors.New("image generation timed out")

// ErrPending is returned by a poll check while the job has not finished.
var ErrPending = errors.New("job pending")

// Poller waits a fixed interval before each of at most MaxAttempts checks.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	// Timer defaults to a real timer; tests inject one that fires immediately.
	Timer backoff.Timer
}

// DefaultPoller checks once a second for up to a minute.
func DefaultPoller() Poller {
	return Poller{Interval: time.Second, MaxAttempts: 60}
}

// Poll calls check until it returns nil or a non-pending error.
// check returns ErrPending to ask for another round; exhausting MaxAttempts yields ErrTimeout.
func (p Poller) Poll(ctx context.Context, check func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return ErrTimeout
	}
	timer := p.Timer
	if timer == nil {
		timer = &realTimer{}
	}

	// The first check also waits one interval.
	timer.Start(p.Interval)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C():
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(p.MaxAttempts-1)), ctx)
	err := backoff.RetryNotifyWithTimer(func() error {
		err := check(ctx)
		if err != nil && !errors.Is(err, ErrPending) {
			return backoff.Permanent(err)
		}
		return err
	}, b, nil, timer)
	if errors.Is(err, ErrPending) {
		return ErrTimeout
	}
	return err
}

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) C() <-chan time.Time {
	return t.timer.C
}

func (t *realTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *realTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}
