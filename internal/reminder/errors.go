package reminder

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every *NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a reminder or task that vanished (or was closed)
// between being queued and being fired.
type NotFoundError struct {
	Entity string // "task" or "remind"
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DispatchError wraps a failed Dispatcher.Notify. The queue entry is kept so
// the next poll retries.
type DispatchError struct {
	RemindID int64
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch remind %d: %v", e.RemindID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// MalformedResponseError reports a dispatcher response body that is not the
// expected JSON document.
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	body := e.Body
	if len(body) > 120 {
		body = body[:120] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed notifier response %q: %v", body, e.Err)
	}
	return fmt.Sprintf("malformed notifier response %q", body)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
