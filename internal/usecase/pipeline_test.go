package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/infrastructure/storage"
)

func newTestPipeline(t *testing.T, source *mockSource, selector staticSelector, dest *scriptedDestination, store *storage.MemoryRepository, clock *fakeClock) *Pipeline {
	t.Helper()
	return NewPipeline(PipelineDeps{
		Source:     source,
		Selector:   selector,
		Resolver:   staticResolver{dest: dest},
		Tracker:    newTracker(store),
		Dispatcher: newDispatcher(t, store, clock),
	})
}

func TestPipelineRelaysAfterSecondSighting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryRepository()
	clock := newFakeClock(epoch)
	dest := &scriptedDestination{clock: clock}

	source := new(mockSource)
	source.On("FetchNewest", mock.Anything, "newzealand", 10).
		Return([]domain.RawSubmission{raw("B", 200), raw("A", 100)}, nil)

	p := newTestPipeline(t, source, staticSelector{scope: "newzealand", channel: "hook/1", ok: true}, dest, store, clock)

	require.NoError(t, p.RunCycle(ctx))
	assert.Empty(t, dest.delivered, "first sighting only records")

	require.NoError(t, p.RunCycle(ctx))
	require.Len(t, dest.delivered, 2)
	assert.Equal(t, "[News] Story A", dest.delivered[0].Title)

	require.NoError(t, p.RunCycle(ctx))
	assert.Len(t, dest.delivered, 2, "delivered items are never sent again")

	source.AssertNumberOfCalls(t, "FetchNewest", 3)
}

func TestPipelineWithoutAssignments(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryRepository()
	clock := newFakeClock(epoch)
	source := new(mockSource)

	p := newTestPipeline(t, source, staticSelector{}, &scriptedDestination{clock: clock}, store, clock)
	require.NoError(t, p.RunCycle(context.Background()))
	source.AssertNotCalled(t, "FetchNewest", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipelineSourceFailure(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryRepository()
	clock := newFakeClock(epoch)
	source := new(mockSource)
	source.On("FetchNewest", mock.Anything, "newzealand", 10).
		Return(nil, &domain.SourceFetchError{Scope: "newzealand", Status: 503, Err: errors.New("unavailable")})

	p := newTestPipeline(t, source, staticSelector{scope: "newzealand", channel: "hook/1", ok: true}, &scriptedDestination{clock: clock}, store, clock)
	err := p.RunCycle(context.Background())

	var fetchErr *domain.SourceFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 503, fetchErr.Status)
}

func TestPipelineKeepsWindowPerChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryRepository()
	clock := newFakeClock(epoch)
	dest := &scriptedDestination{
		clock: clock,
		responses: []scriptedResponse{
			{delivery: domain.Delivery{MessageID: 1, RateLimit: domain.RateLimit{Limit: 5, Remaining: 2}}},
		},
	}

	source := new(mockSource)
	source.On("FetchNewest", mock.Anything, "newzealand", 10).
		Return([]domain.RawSubmission{raw("A", 100)}, nil)

	p := newTestPipeline(t, source, staticSelector{scope: "newzealand", channel: "hook/1", ok: true}, dest, store, clock)
	require.NoError(t, p.RunCycle(ctx))
	require.NoError(t, p.RunCycle(ctx))

	assert.Equal(t, 2, p.windowFor("hook/1").Remaining)
	assert.Equal(t, 0, p.windowFor("hook/2").Remaining)
}

func TestPipelineTracksItemsWhenChannelCannotResolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryRepository()
	clock := newFakeClock(epoch)

	source := new(mockSource)
	source.On("FetchNewest", mock.Anything, "newzealand", 10).
		Return([]domain.RawSubmission{raw("A", 100)}, nil)

	p := NewPipeline(PipelineDeps{
		Source:     source,
		Selector:   staticSelector{scope: "newzealand", channel: "general", ok: true},
		Resolver:   failingResolver{err: errors.New("no default webhook")},
		Tracker:    newTracker(store),
		Dispatcher: newDispatcher(t, store, clock),
	})

	require.Error(t, p.RunCycle(ctx))
	require.Error(t, p.RunCycle(ctx))

	a, err := store.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, a.State, "ingest runs before the channel is resolved")
	source.AssertNumberOfCalls(t, "FetchNewest", 2)
}

func TestPipelineRecordsWindowPerChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryRepository()
	clock := newFakeClock(epoch)
	reset := epoch.Add(30 * time.Second)
	dest := &scriptedDestination{
		clock: clock,
		responses: []scriptedResponse{
			{err: &domain.DeliveryError{Status: 429, RateLimit: &domain.RateLimit{Limit: 5, Remaining: 0, Reset: reset}, Err: errors.New("too many requests")}},
		},
	}

	source := new(mockSource)
	source.On("FetchNewest", mock.Anything, "newzealand", 10).
		Return([]domain.RawSubmission{raw("A", 100)}, nil)

	recorder := &windowRecorder{}
	p := NewPipeline(PipelineDeps{
		Source:     source,
		Selector:   staticSelector{scope: "newzealand", channel: "hook/1", ok: true},
		Resolver:   staticResolver{dest: dest},
		Tracker:    newTracker(store),
		Dispatcher: newDispatcher(t, store, clock),
		Recorder:   recorder,
	})

	require.NoError(t, p.RunCycle(ctx))
	require.Error(t, p.RunCycle(ctx))

	got, ok := recorder.windows["hook/1"]
	require.True(t, ok, "rejected drains still publish the window")
	assert.Equal(t, 0, got.Remaining)
	assert.Equal(t, reset, got.ResetAt)
	assert.NotContains(t, recorder.windows, "newzealand")
}
