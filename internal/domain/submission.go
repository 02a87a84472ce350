package domain

import (
	"strings"
	"time"
)

// State is the lifecycle position of a tracked submission.
type State int

const (
	StateInitial State = iota
	StateReady
	StateDelivered
)

// String renders the state for logs and the status API.
func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateReady:
		return "ready"
	case StateDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of State.String.
func ParseState(v string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "initial":
		return StateInitial, true
	case "ready":
		return StateReady, true
	case "delivered":
		return StateDelivered, true
	default:
		return 0, false
	}
}

// Submission is a persisted row keyed by the source-assigned ExternalID.
type Submission struct {
	Scope        string `json:"scope"`
	ExternalID   string `json:"externalId"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	CreatedAt    int64  `json:"createdAt"`
	Category     string `json:"category"`
	Permalink    string `json:"permalink"`
	ThumbnailURL string `json:"thumbnailUrl"`
	IsDaily      bool   `json:"isDaily"`
	MessageID    *int64 `json:"messageId,omitempty"`
	State        State  `json:"state"`
}

// Created converts the epoch seconds column to a UTC time.
func (s Submission) Created() time.Time {
	return time.Unix(s.CreatedAt, 0).UTC()
}

// RawSubmission is one listing entry exactly as the content source reports it.
type RawSubmission struct {
	ID        string
	Scope     string
	Title     string
	Author    string
	CreatedAt int64
	Flair     *string
	Permalink string
	Thumbnail string
}

// Query selects submissions in a single state, newest first.
type Query struct {
	State State
	Scope string // empty matches every scope
	Limit int
}

// StateCounts is a per-state tally used for statistics.
type StateCounts map[State]int
