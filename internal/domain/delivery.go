package domain

import "time"

// Payload is a destination-agnostic rendering of one submission.
type Payload struct {
	Title        string
	URL          string
	Color        int
	Timestamp    string
	ThumbnailURL string
	AuthorName   string
	AuthorURL    string
}

// RateLimit mirrors the rate-limit headers returned by a destination.
// Zero values mean the destination did not report them.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Delivery is the destination's receipt for a delivered payload.
type Delivery struct {
	MessageID int64
	RateLimit RateLimit
}

// RateWindow is the dispatcher's view of a destination's rolling window.
// The zero value is "unknown", which permits the next delivery.
type RateWindow struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Allows reports whether a delivery may be issued at now.
func (w RateWindow) Allows(now time.Time) bool {
	return w.Remaining > 0 || !now.Before(w.ResetAt)
}

// Overwrite replaces the window with the destination's latest report.
func (w *RateWindow) Overwrite(rl RateLimit) {
	w.Limit = rl.Limit
	w.Remaining = rl.Remaining
	w.ResetAt = rl.Reset
}
