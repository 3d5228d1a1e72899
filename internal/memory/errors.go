package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an unknown memory id within the tenant scope.
	ErrNotFound = errors.New("memory: not found")

	// ErrImmutable indicates a mutation attempt on an immutable memory.
	// The stored row is left untouched.
	ErrImmutable = errors.New("memory: immutable")

	// ErrEmptyContent indicates that no usable memory text remained after
	// inference and trimming.
	ErrEmptyContent = errors.New("memory: empty memory content")

	// ErrUnsupportedSchema indicates an unknown request schema version.
	ErrUnsupportedSchema = errors.New("memory: unsupported schema version")

	// ErrInvalidSentiment indicates a feedback value outside the allowed
	// set.
	ErrInvalidSentiment = errors.New("memory: invalid sentiment")
)

// ExternalError wraps a collaborator failure (embedding, LLM, storage,
// blob). The inner error is kept for logs; callers surface it generically.
type ExternalError struct {
	Dependency string
	Err        error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("memory: %s dependency failed: %v", e.Dependency, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// externalErr wraps err as an ExternalError unless it is nil.
func externalErr(dependency string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalError{Dependency: dependency, Err: err}
}
