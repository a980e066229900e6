package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cuckoo/internal/reminder"
	"cuckoo/internal/repeat"
)

const remindColumns = `id, task_id, context, restricted_hours, timestamp, repeat_type, closed, create_at, update_at`

func scanReminder(sc interface{ Scan(...any) error }) (*reminder.Reminder, error) {
	var (
		r       reminder.Reminder
		hours   sql.NullString
		repType sql.NullString
		closed  int
	)
	if err := sc.Scan(&r.ID, &r.TaskID, &r.Context, &hours, &r.NextFireAt, &repType, &closed, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Closed = closed != 0
	if hours.Valid && hours.String != "" {
		if err := json.Unmarshal([]byte(hours.String), &r.RestrictedHours); err != nil {
			return nil, fmt.Errorf("remind %d restricted_hours: %w", r.ID, err)
		}
	}
	if repType.Valid && repType.String != "" {
		p, err := repeat.Parse(repType.String)
		if err != nil {
			return nil, fmt.Errorf("remind %d: %w", r.ID, err)
		}
		r.Repeat = &p
	}
	return &r, nil
}

func reminderArgs(r *reminder.Reminder) (hours, rep any, err error) {
	if r.RestrictedHours != nil {
		b, err := json.Marshal(r.RestrictedHours)
		if err != nil {
			return nil, nil, err
		}
		hours = string(b)
	}
	if r.Recurring() {
		rep = r.Repeat.String()
	}
	return hours, rep, nil
}

// CreateReminder inserts r and sets its ID and timestamps.
func (s *SQLite) CreateReminder(ctx context.Context, r *reminder.Reminder) error {
	hours, rep, err := reminderArgs(r)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO remind(task_id, context, restricted_hours, timestamp, repeat_type, closed, create_at, update_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.TaskID, r.Context, hours, r.NextFireAt, rep, boolInt(r.Closed), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert remind: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

func (s *SQLite) GetReminder(ctx context.Context, id int64) (*reminder.Reminder, error) {
	r, err := scanReminder(s.q.QueryRowContext(ctx, `SELECT `+remindColumns+` FROM remind WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &reminder.NotFoundError{Entity: "remind", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get remind %d: %w", id, err)
	}
	return r, nil
}

// PutReminder overwrites an existing reminder row.
func (s *SQLite) PutReminder(ctx context.Context, r *reminder.Reminder) error {
	hours, rep, err := reminderArgs(r)
	if err != nil {
		return err
	}
	if r.UpdatedAt == 0 {
		r.UpdatedAt = time.Now().Unix()
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE remind SET task_id=?, context=?, restricted_hours=?, timestamp=?, repeat_type=?, closed=?, update_at=?
		 WHERE id=?`,
		r.TaskID, r.Context, hours, r.NextFireAt, rep, boolInt(r.Closed), r.UpdatedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("put remind %d: %w", r.ID, err)
	}
	return expectOne(res, "remind", r.ID)
}
