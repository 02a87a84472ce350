package classify

import (
	"strings"

	"SubmissionRelay/internal/domain"
)

// DefaultCategory is used when the source supplies no flair.
const DefaultCategory = "Other"

// DailyRule recognises the recurring system-authored discussion thread.
// All four fields come from configuration; an incomplete rule never matches.
type DailyRule struct {
	Scope       string
	Author      string
	Category    string
	TitleMarker string
}

func (r DailyRule) complete() bool {
	return r.Scope != "" && r.Author != "" && r.Category != "" && r.TitleMarker != ""
}

// Classifier derives display category and the daily-thread flag.
type Classifier struct {
	daily DailyRule
}

// New builds a classifier for the given daily rule.
func New(daily DailyRule) *Classifier {
	return &Classifier{daily: daily}
}

// Classify returns the category and whether raw is the daily thread of scope.
func (c *Classifier) Classify(raw domain.RawSubmission, scope string) (string, bool) {
	category := DefaultCategory
	if raw.Flair != nil && strings.TrimSpace(*raw.Flair) != "" {
		category = *raw.Flair
	}

	if c == nil || !c.daily.complete() {
		return category, false
	}

	isDaily := scope == c.daily.Scope &&
		raw.Author == c.daily.Author &&
		category == c.daily.Category &&
		strings.Contains(raw.Title, c.daily.TitleMarker)

	return category, isDaily
}
