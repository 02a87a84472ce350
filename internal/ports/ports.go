package ports

import (
	"context"
	"time"

	"SubmissionRelay/internal/domain"
)

// SubmissionSource pulls the newest listing entries for a scope.
type SubmissionSource interface {
	FetchNewest(ctx context.Context, scope string, count int) ([]domain.RawSubmission, error)
}

// SubmissionStore persists tracked submissions keyed by external id.
type SubmissionStore interface {
	Upsert(ctx context.Context, s domain.Submission) (domain.State, error)
	QueryByState(ctx context.Context, q domain.Query) ([]domain.Submission, error)
	MarkDelivered(ctx context.Context, externalID string, messageID int64) error
	Get(ctx context.Context, externalID string) (domain.Submission, error)
	LatestDaily(ctx context.Context, scope string) (domain.Submission, error)
	CountByState(ctx context.Context, scope string) (domain.StateCounts, error)
	Close() error
}

// Destination delivers a formatted payload to one chat channel.
type Destination interface {
	Deliver(ctx context.Context, payload domain.Payload) (domain.Delivery, error)
}

// DestinationResolver turns a channel identifier into a destination handle.
type DestinationResolver interface {
	Resolve(channelID string) (Destination, error)
}

// ScopeSelector yields the next scope to process together with its channel.
type ScopeSelector interface {
	Next() (scope string, channelID string, ok bool)
}

// Clock abstracts time so rate-limit waits can be driven by tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Recorder receives relay events for metrics.
type Recorder interface {
	Ingested(scope, outcome string)
	Delivered(scope string)
	DeliveryFailed(scope string)
	RateLimitWait(scope string)
	Window(channelID string, w domain.RateWindow)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
