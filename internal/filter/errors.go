package filter

import "errors"

// Filter errors are rejected before any storage access. Callers match with
// errors.Is; the wrapped message carries the offending fragment.
var (
	// ErrInvalidSyntax indicates a filter document that cannot be parsed
	// (malformed JSON string, compound key with a non-composable value).
	ErrInvalidSyntax = errors.New("filter: invalid filter syntax")

	// ErrInvalidField indicates a field name outside the allow-list.
	ErrInvalidField = errors.New("filter: invalid filter field")

	// ErrUnsupportedOperator indicates an operator applied to a column type
	// that does not support it (e.g. a range comparison on a string column).
	ErrUnsupportedOperator = errors.New("filter: unsupported operator")
)
