package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/infrastructure/storage"
)

const defaultThumb = "https://thumbs.example/default.png"

func newTracker(store *storage.MemoryRepository) *Tracker {
	return NewTracker(TrackerDeps{
		Store:            store,
		Classifier:       testClassifier(),
		DefaultThumbnail: defaultThumb,
	})
}

func TestIngestTwoPassesAdvanceToReady(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryRepository()
	tracker := newTracker(store)
	batch := []domain.RawSubmission{raw("B", 200), raw("A", 100)}

	report, err := tracker.Ingest(ctx, batch, "newzealand")
	require.NoError(t, err)
	assert.Equal(t, 2, report.States[domain.StateInitial])

	for _, id := range []string{"A", "B"} {
		s, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StateInitial, s.State)
	}

	report, err = tracker.Ingest(ctx, batch, "newzealand")
	require.NoError(t, err)
	assert.Equal(t, 2, report.States[domain.StateReady])

	for _, id := range []string{"A", "B"} {
		s, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StateReady, s.State)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryRepository()
	tracker := newTracker(store)
	batch := []domain.RawSubmission{raw("C", 300), raw("B", 200), raw("A", 100)}

	for i := 0; i < 2; i++ {
		_, err := tracker.Ingest(ctx, batch, "newzealand")
		require.NoError(t, err)
	}
	before, err := store.QueryByState(ctx, domain.Query{State: domain.StateReady})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := tracker.Ingest(ctx, batch, "newzealand")
		require.NoError(t, err)
	}
	after, err := store.QueryByState(ctx, domain.Query{State: domain.StateReady})
	require.NoError(t, err)

	assert.Equal(t, before, after)
	counts, err := store.CountByState(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCounts{domain.StateReady: 3}, counts)
}

func TestIngestDoesNotRegressDelivered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryRepository()
	tracker := newTracker(store)
	batch := []domain.RawSubmission{raw("A", 100)}

	for i := 0; i < 2; i++ {
		_, err := tracker.Ingest(ctx, batch, "newzealand")
		require.NoError(t, err)
	}
	require.NoError(t, store.MarkDelivered(ctx, "A", 7))

	flair := "Politics"
	changed := raw("A", 100)
	changed.Flair = &flair
	report, err := tracker.Ingest(ctx, []domain.RawSubmission{changed}, "newzealand")
	require.NoError(t, err)
	assert.Equal(t, 1, report.States[domain.StateDelivered])

	s, err := store.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDelivered, s.State)
	assert.Equal(t, "Politics", s.Category)
}

func TestIngestSkipsInvalidEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryRepository()
	tracker := newTracker(store)

	noAuthor := raw("X", 50)
	noAuthor.Author = ""
	noID := raw("", 60)

	report, err := tracker.Ingest(ctx, []domain.RawSubmission{raw("A", 100), noAuthor, noID, raw("B", 200)}, "newzealand")
	require.NoError(t, err)
	assert.Equal(t, 4, report.Seen)
	assert.Equal(t, 2, report.Skipped)

	_, err = store.Get(ctx, "X")
	assert.Error(t, err)
	_, err = store.Get(ctx, "B")
	assert.NoError(t, err)
}

func TestIngestResolvesThumbnailAndClassification(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryRepository()
	tracker := newTracker(store)

	self := raw("S", 100)
	self.Thumbnail = "self"
	spoiler := raw("P", 110)
	spoiler.Thumbnail = "spoiler"
	unflaired := raw("U", 120)
	unflaired.Flair = nil
	discussion := "Discussion"
	daily := raw("D", 130)
	daily.Author = "AutoModerator"
	daily.Title = "Random Daily Discussion - 19 October"
	daily.Flair = &discussion

	_, err := tracker.Ingest(ctx, []domain.RawSubmission{self, spoiler, unflaired, daily, raw("I", 140)}, "newzealand")
	require.NoError(t, err)

	get := func(id string) domain.Submission {
		s, err := store.Get(ctx, id)
		require.NoError(t, err)
		return s
	}

	assert.Equal(t, defaultThumb, get("S").ThumbnailURL)
	assert.Equal(t, defaultThumb, get("P").ThumbnailURL)
	assert.Equal(t, "https://thumbs.example/I.jpg", get("I").ThumbnailURL)
	assert.Equal(t, "Other", get("U").Category)
	assert.True(t, get("D").IsDaily)
	assert.False(t, get("I").IsDaily)

	latest, err := store.LatestDaily(ctx, "newzealand")
	require.NoError(t, err)
	assert.Equal(t, "D", latest.ExternalID)
}
