package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation error")
	// ErrEmbeddingUnavailable wraps failures of the embedding provider.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrStoreUnavailable wraps failures of the vector store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrGraphProjectionStale marks a record whose vector write succeeded but whose graph
	// write did not. It is logged and counted, never returned from Create.
	ErrGraphProjectionStale = errors.New("graph projection stale")
)

// ValidationError reports bad input. It is never worth retrying.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func embeddingUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
}

func storeUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
