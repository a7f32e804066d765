package reconcile

import (
	"errors"
	"fmt"
)

// AuthError is fatal for the affected provider's sync. Nothing is written.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransientError marks a network-level failure worth retrying on the next
// candidate endpoint. Exhausted retries degrade enrichment, they do not
// abort the sync.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// EnrichmentError records that descriptive detail could not be fetched for
// a resource. The resource is still created from billing data.
type EnrichmentError struct {
	ResourceID string
	Err        error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment failed for %s: %v", e.ResourceID, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransient reports whether err is a retryable network failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
