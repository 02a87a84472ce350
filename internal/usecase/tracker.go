package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"SubmissionRelay/internal/classify"
	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/ports"
)

// placeholderThumbnails are values the source reports when an entry has no image.
var placeholderThumbnails = map[string]struct{}{
	"":        {},
	"self":    {},
	"default": {},
	"spoiler": {},
	"nsfw":    {},
	"image":   {},
}

var errMissingField = errors.New("missing required field")

// TrackerDeps wires the tracker collaborators.
type TrackerDeps struct {
	Store            ports.SubmissionStore
	Classifier       *classify.Classifier
	DefaultThumbnail string
	Recorder         ports.Recorder
	Logger           *slog.Logger
}

// Tracker moves listing entries through INITIAL and READY.
type Tracker struct {
	store            ports.SubmissionStore
	classifier       *classify.Classifier
	defaultThumbnail string
	recorder         ports.Recorder
	logger           *slog.Logger
}

// IngestReport summarises one ingestion pass.
type IngestReport struct {
	Seen    int
	Skipped int
	States  domain.StateCounts
}

// NewTracker constructs the lifecycle tracker.
func NewTracker(deps TrackerDeps) *Tracker {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{
		store:            deps.Store,
		classifier:       deps.Classifier,
		defaultThumbnail: deps.DefaultThumbnail,
		recorder:         deps.Recorder,
		logger:           logger,
	}
}

// Ingest upserts raw entries in source order. Invalid entries are skipped with
// a warning; a store failure aborts the pass.
func (t *Tracker) Ingest(ctx context.Context, raw []domain.RawSubmission, scope string) (IngestReport, error) {
	report := IngestReport{States: domain.StateCounts{}}
	if t.store == nil {
		return report, fmt.Errorf("tracker store is not configured")
	}

	for _, entry := range raw {
		report.Seen++

		if err := validateRaw(entry); err != nil {
			report.Skipped++
			t.logger.Warn("skip submission", "scope", scope, "id", entry.ID, "error", err)
			t.record(scope, "skipped")
			continue
		}

		category, isDaily := t.classifier.Classify(entry, scope)
		state, err := t.store.Upsert(ctx, domain.Submission{
			Scope:        scope,
			ExternalID:   entry.ID,
			Title:        entry.Title,
			Author:       entry.Author,
			CreatedAt:    entry.CreatedAt,
			Category:     category,
			Permalink:    entry.Permalink,
			ThumbnailURL: t.thumbnail(entry.Thumbnail),
			IsDaily:      isDaily,
		})
		if err != nil {
			return report, fmt.Errorf("ingest %s: %w", entry.ID, err)
		}

		report.States[state]++
		t.record(scope, state.String())
	}

	t.logger.Debug("ingest done",
		"scope", scope,
		"seen", report.Seen,
		"skipped", report.Skipped,
		"initial", report.States[domain.StateInitial],
		"ready", report.States[domain.StateReady],
	)
	return report, nil
}

func (t *Tracker) thumbnail(reported string) string {
	if _, ok := placeholderThumbnails[strings.TrimSpace(reported)]; ok {
		return t.defaultThumbnail
	}
	return reported
}

func (t *Tracker) record(scope, outcome string) {
	if t.recorder != nil {
		t.recorder.Ingested(scope, outcome)
	}
}

func validateRaw(entry domain.RawSubmission) error {
	switch {
	case strings.TrimSpace(entry.ID) == "":
		return fmt.Errorf("%w: id", errMissingField)
	case strings.TrimSpace(entry.Author) == "":
		return fmt.Errorf("%w: author", errMissingField)
	case strings.TrimSpace(entry.Title) == "":
		return fmt.Errorf("%w: title", errMissingField)
	}
	return nil
}
