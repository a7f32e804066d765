package reconcile

import (
	"context"
	"errors"
	"fmt"
)

// Outcome classifies one attempt against a candidate endpoint.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomePermanent
)

// Attempt is one named strategy in an ordered candidate list.
type Attempt[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Classify maps an attempt error to an outcome. The default treats
// TransientError as retryable and everything else as permanent.
type Classify func(err error) Outcome

// DefaultClassify retries transient failures only.
func DefaultClassify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if IsTransient(err) {
		return OutcomeRetryable
	}
	return OutcomePermanent
}

// TryOrdered runs attempts in order until one succeeds or fails
// permanently. A retryable failure moves on to the next candidate; there is
// no unbounded retry — the list is the budget.
func TryOrdered[T any](ctx context.Context, attempts []Attempt[T], classify Classify) (T, error) {
	var zero T
	if classify == nil {
		classify = DefaultClassify
	}
	if len(attempts) == 0 {
		return zero, errors.New("no attempts configured")
	}

	var lastErr error
	for _, attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := attempt.Run(ctx)
		switch classify(err) {
		case OutcomeSuccess:
			return result, nil
		case OutcomePermanent:
			return zero, fmt.Errorf("attempt %s: %w", attempt.Name, err)
		case OutcomeRetryable:
			lastErr = err
		}
	}
	return zero, fmt.Errorf("all %d attempts exhausted: %w", len(attempts), lastErr)
}
