package storage

import (
	"context"
	"fmt"

	"cuckoo/internal/reminder"
)

// Enqueue inserts e, replacing any entry for the same reminder.
func (s *SQLite) Enqueue(ctx context.Context, e reminder.QueueEntry) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO queue(remind_id, task_id, fire_at) VALUES(?,?,?)
		 ON CONFLICT(remind_id) DO UPDATE SET task_id=excluded.task_id, fire_at=excluded.fire_at`,
		e.RemindID, e.TaskID, e.FireAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue remind %d: %w", e.RemindID, err)
	}
	return nil
}

// Remove deletes the entry for remindID; a missing entry is not an error.
func (s *SQLite) Remove(ctx context.Context, remindID int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM queue WHERE remind_id = ?`, remindID); err != nil {
		return fmt.Errorf("dequeue remind %d: %w", remindID, err)
	}
	return nil
}

// ListDue returns entries with fire_at <= upTo, oldest first.
func (s *SQLite) ListDue(ctx context.Context, upTo int64) ([]reminder.QueueEntry, error) {
	return s.listQueue(ctx, `SELECT remind_id, task_id, fire_at FROM queue WHERE fire_at <= ? ORDER BY fire_at, remind_id`, upTo)
}

func (s *SQLite) List(ctx context.Context) ([]reminder.QueueEntry, error) {
	return s.listQueue(ctx, `SELECT remind_id, task_id, fire_at FROM queue ORDER BY fire_at, remind_id`)
}

// QueuedAt returns the entry for remindID, if any.
func (s *SQLite) QueuedAt(ctx context.Context, remindID int64) (reminder.QueueEntry, bool, error) {
	entries, err := s.listQueue(ctx, `SELECT remind_id, task_id, fire_at FROM queue WHERE remind_id = ?`, remindID)
	if err != nil || len(entries) == 0 {
		return reminder.QueueEntry{}, false, err
	}
	return entries[0], true, nil
}

func (s *SQLite) listQueue(ctx context.Context, query string, args ...any) ([]reminder.QueueEntry, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var out []reminder.QueueEntry
	for rows.Next() {
		var e reminder.QueueEntry
		if err := rows.Scan(&e.RemindID, &e.TaskID, &e.FireAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
