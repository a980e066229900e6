package reminder

import "context"

// Queue is the delay queue. Entries are keyed by RemindID; List and ListDue
// return ascending FireAt.
type Queue interface {
	Enqueue(ctx context.Context, e QueueEntry) error
	Remove(ctx context.Context, remindID int64) error
	ListDue(ctx context.Context, upTo int64) ([]QueueEntry, error)
	List(ctx context.Context) ([]QueueEntry, error)
}

// Store is the persistence the engine needs. Lookups of missing rows return
// an error matching ErrNotFound.
type Store interface {
	GetReminder(ctx context.Context, id int64) (*Reminder, error)
	PutReminder(ctx context.Context, r *Reminder) error
	GetTask(ctx context.Context, id int64) (*Task, error)
	AppendRemindLog(ctx context.Context, e RemindLog) error
}

// Dispatcher shows a notification and reports the user's response.
type Dispatcher interface {
	Notify(ctx context.Context, rem *Reminder, p Payload) (Response, error)
}

// ContextProvider reports the current device/location tag ("" when unknown).
type ContextProvider interface {
	Current(ctx context.Context) (string, error)
}
