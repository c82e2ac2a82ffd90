package aggregate

import (
	"errors"
	"fmt"
)

var ErrLengthMismatch = errors.New("hourly series length mismatch")

// ParseError reports hourly data that cannot be aggregated. Index is -1 when
// the error concerns a whole series rather than one element.
type ParseError struct {
	Field string
	Index int
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("parse hourly %s: %v", e.Field, e.Err)
	}
	if e.Value != "" {
		return fmt.Sprintf("parse hourly %s[%d]=%q: %v", e.Field, e.Index, e.Value, e.Err)
	}
	return fmt.Sprintf("parse hourly %s[%d]: %v", e.Field, e.Index, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
