package domain

import "fmt"

// NotFoundError is returned when no row matches an external id.
type NotFoundError struct {
	ExternalID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("submission %s not found", e.ExternalID)
}

// InvalidStateError reports an illegal lifecycle transition.
type InvalidStateError struct {
	ExternalID string
	From       State
	To         State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("submission %s: cannot move from %s to %s", e.ExternalID, e.From, e.To)
}

// DeliveryError wraps a destination rejection or transport failure.
// RateLimit is set when the rejection carried rate-limit headers.
type DeliveryError struct {
	Status    int
	RateLimit *RateLimit
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("delivery failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// SourceFetchError wraps an unreachable source or a malformed listing.
type SourceFetchError struct {
	Scope  string
	Status int
	Err    error
}

func (e *SourceFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Scope, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Scope, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }
