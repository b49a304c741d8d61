package chatclient

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the room, group or conversation does not exist or is
	// not available to the current user.
	ErrNotFound = errors.New("not found")
	// ErrNoSession is returned before a user session has been established.
	ErrNoSession = errors.New("no active session")
	// ErrNoActiveRoom is returned by timeline operations that need a room.
	ErrNoActiveRoom = errors.New("no active room")
)

// TransientFetchError wraps failures worth retrying: network errors,
// timeouts and 5xx responses.
type TransientFetchError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: transient failure: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is, or wraps, a TransientFetchError.
func IsTransient(err error) bool {
	var transient *TransientFetchError
	return errors.As(err, &transient)
}

// ValidationError reports rejected input. No I/O happens before it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
