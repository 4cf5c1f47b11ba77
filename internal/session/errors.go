package session

import (
	"errors"
	"fmt"
)

// ValidationError is an empty or malformed input caught before any request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

var (
	ErrNoSession      = errors.New("no scan session started")
	ErrWrongStep      = errors.New("action not allowed at this step")
	ErrNoActiveReview = errors.New("no page under review")
	ErrStaleReview    = errors.New("view does not belong to the page under review")
	ErrNotReviewable  = errors.New("page is not awaiting review")
	ErrIdentityLocked = errors.New("patient identity already confirmed")
	ErrIncomplete     = errors.New("pages are still being processed")
)
