package registry

import (
	"errors"
	"fmt"
)

// NonRetryableError marks a row that must go to the dead letter table.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err or anything it wraps is a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

func nonRetryablef(format string, args ...any) NonRetryableError {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}
