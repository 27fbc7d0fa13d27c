package claims

import (
	"fmt"
	"time"
)

// ValidationError reports malformed input that was rejected before touching
// any ledger or counter.
type ValidationError struct {
	msg string
}

// NewValidationError ...
func NewValidationError(format string, args ...interface{}) ValidationError {
	return ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface
func (e ValidationError) Error() string {
	return e.msg
}

// IsValidation checks that an error is of type ValidationError.
func IsValidation(err error) bool {
	_, ok := err.(ValidationError)
	return ok
}

// ConflictReason ...
type ConflictReason uint32

const (
	// ClaimLocked is returned when a mutating operation reaches a claim that
	// has already left the Open state.
	ClaimLocked ConflictReason = iota
	// DuplicateVote is returned when an identity votes twice on one claim.
	DuplicateVote
)

// ConflictError reports an operation that lost against the claim's current
// state. No state is mutated when it is returned.
type ConflictError struct {
	reason  ConflictReason
	claimID string
}

// NewConflictError ...
func NewConflictError(reason ConflictReason, claimID string) ConflictError {
	return ConflictError{
		reason:  reason,
		claimID: claimID,
	}
}

// Error implements the error interface
func (e ConflictError) Error() string {
	m := ""
	switch e.reason {
	case ClaimLocked:
		m = "Claim Locked"
	case DuplicateVote:
		m = "Duplicate Vote"
	}
	return fmt.Sprintf("%s, %s", e.claimID, m)
}

// IsConflict checks that an error is of type ConflictError and that its
// reason matches the provided reason.
func IsConflict(err error, reason ConflictReason) bool {
	conflictErr, ok := err.(ConflictError)
	return ok && conflictErr.reason == reason
}

// RateLimitError is surfaced when an identity exceeds one of its vote
// limits. It carries a wait-time hint and the remaining window allowances.
type RateLimitError struct {
	Reason          string
	Wait            time.Duration
	RemainingHourly int
	RemainingDaily  int
}

// Error implements the error interface
func (e RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry in %v", e.Reason, e.Wait)
}

// IsRateLimit checks that an error is of type RateLimitError.
func IsRateLimit(err error) bool {
	_, ok := err.(RateLimitError)
	return ok
}

// NotFoundError reports an unknown claim or identity.
type NotFoundError struct {
	dataType string
	key      string
}

// NewNotFoundError ...
func NewNotFoundError(dataType string, key string) NotFoundError {
	return NotFoundError{
		dataType: dataType,
		key:      key,
	}
}

// Error implements the error interface
func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s, %s, Not Found", e.dataType, e.key)
}

// IsNotFound checks that an error is of type NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(NotFoundError)
	return ok
}
