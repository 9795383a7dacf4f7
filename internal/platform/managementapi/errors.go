package managementapi

import (
	"errors"
	"fmt"
)

const (
	opCreate = "create"
	opDelete = "delete"
)

// Configuration errors returned by Config.Validate.
var (
	ErrMissingBaseURL     = errors.New("management api base url is required")
	ErrNegativeRetryCount = errors.New("management api retry count must not be negative")
)

// Error is the only error kind returned by Client. Diagnostics is safe to show
// to staff; Err holds the transport or decoding cause when there is one.
type Error struct {
	Op          string
	StatusCode  int
	Diagnostics string
	Err         error
}

func (e *Error) Error() string {
	if e.Diagnostics != "" {
		return e.Diagnostics
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("subscription %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("subscription %s failed", e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsError reports whether err came from the subscription service adapter.
func IsError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
