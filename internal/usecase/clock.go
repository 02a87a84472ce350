package usecase

import (
	"context"
	"time"

	"SubmissionRelay/internal/ports"
)

// SystemClock is the wall clock.
type SystemClock struct{}

var _ ports.Clock = SystemClock{}

func (SystemClock) Now() time.Time { return time.Now() }

// Sleep blocks for d; it returns early only when ctx is cancelled.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
