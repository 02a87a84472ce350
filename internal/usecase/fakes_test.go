package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"SubmissionRelay/internal/classify"
	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/format"
	"SubmissionRelay/internal/ports"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// scriptedDestination answers deliveries from a list of responses, then succeeds.
type scriptedDestination struct {
	clock     ports.Clock
	responses []scriptedResponse
	calls     int
	delivered []domain.Payload
	at        []time.Time
}

type scriptedResponse struct {
	delivery domain.Delivery
	err      error
}

func (d *scriptedDestination) Deliver(ctx context.Context, payload domain.Payload) (domain.Delivery, error) {
	_ = ctx
	idx := d.calls
	d.calls++

	resp := scriptedResponse{delivery: domain.Delivery{MessageID: int64(1000 + idx)}}
	if idx < len(d.responses) {
		resp = d.responses[idx]
	}
	if resp.err != nil {
		return domain.Delivery{}, resp.err
	}

	d.delivered = append(d.delivered, payload)
	d.at = append(d.at, d.clock.Now())
	return resp.delivery, nil
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) FetchNewest(ctx context.Context, scope string, count int) ([]domain.RawSubmission, error) {
	args := m.Called(ctx, scope, count)
	raw, _ := args.Get(0).([]domain.RawSubmission)
	return raw, args.Error(1)
}

type staticSelector struct {
	scope, channel string
	ok             bool
}

func (s staticSelector) Next() (string, string, bool) { return s.scope, s.channel, s.ok }

type staticResolver struct {
	dest ports.Destination
}

func (r staticResolver) Resolve(string) (ports.Destination, error) { return r.dest, nil }

type failingResolver struct {
	err error
}

func (r failingResolver) Resolve(string) (ports.Destination, error) { return nil, r.err }

// windowRecorder keeps the last window reported per channel.
type windowRecorder struct {
	mu      sync.Mutex
	windows map[string]domain.RateWindow
}

func (r *windowRecorder) Ingested(string, string) {}
func (r *windowRecorder) Delivered(string) {}
func (r *windowRecorder) DeliveryFailed(string) {}
func (r *windowRecorder) RateLimitWait(string) {}

func (r *windowRecorder) Window(channelID string, w domain.RateWindow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.windows == nil {
		r.windows = map[string]domain.RateWindow{}
	}
	r.windows[channelID] = w
}

func testFormatter(t *testing.T) *format.Formatter {
	t.Helper()
	f, err := format.New(format.Options{
		SiteURL:       "https://reddit.com",
		Colours:       map[string]string{"news": "CB7BC0"},
		DefaultColour: "c2c2cf",
	})
	require.NoError(t, err)
	return f
}

func testClassifier() *classify.Classifier {
	return classify.New(classify.DailyRule{
		Scope:       "newzealand",
		Author:      "AutoModerator",
		Category:    "Discussion",
		TitleMarker: "Random Daily Discussion",
	})
}

func raw(id string, createdAt int64) domain.RawSubmission {
	flair := "News"
	return domain.RawSubmission{
		ID:        id,
		Scope:     "newzealand",
		Title:     "Story " + id,
		Author:    "kiwi",
		CreatedAt: createdAt,
		Flair:     &flair,
		Permalink: "/r/newzealand/comments/" + id,
		Thumbnail: "https://thumbs.example/" + id + ".jpg",
	}
}
