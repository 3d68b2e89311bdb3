package core

import (
	"context"
	"time"
)

// Clock abstracts wall-clock reads so due-time computation can be tested deterministically
type Clock interface {
	Now() time.Time
}

// SleepFunc blocks for d or until ctx is done, whichever comes first
type SleepFunc func(ctx context.Context, d time.Duration) error

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock returns the real UTC clock
func SystemClock() Clock {
	return systemClock{}
}

// Sleep is the real SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
