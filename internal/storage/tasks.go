package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cuckoo/internal/reminder"
)

const taskColumns = `id, brief, detail, device, icon, icon_file, state, remind_id, create_at, update_at`

func scanTask(sc interface{ Scan(...any) error }) (*reminder.Task, error) {
	var (
		t        reminder.Task
		remindID sql.NullInt64
	)
	if err := sc.Scan(&t.ID, &t.Brief, &t.Detail, &t.Device, &t.Icon, &t.IconFile, &t.State, &remindID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.RemindID = remindID.Int64
	return &t, nil
}

// CreateTask inserts t and sets its ID and timestamps.
func (s *SQLite) CreateTask(ctx context.Context, t *reminder.Task) error {
	now := time.Now().Unix()
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.State == "" {
		t.State = reminder.TaskActive
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO task(brief, detail, device, icon, icon_file, state, remind_id, create_at, update_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		t.Brief, t.Detail, t.Device, t.Icon, t.IconFile, t.State, nullInt(t.RemindID), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

func (s *SQLite) GetTask(ctx context.Context, id int64) (*reminder.Task, error) {
	t, err := scanTask(s.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM task WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &reminder.NotFoundError{Entity: "task", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

// UpdateTask writes every mutable column of t.
func (s *SQLite) UpdateTask(ctx context.Context, t *reminder.Task) error {
	t.UpdatedAt = time.Now().Unix()
	res, err := s.q.ExecContext(ctx,
		`UPDATE task SET brief=?, detail=?, device=?, icon=?, icon_file=?, state=?, remind_id=?, update_at=?
		 WHERE id=?`,
		t.Brief, t.Detail, t.Device, t.Icon, t.IconFile, t.State, nullInt(t.RemindID), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	return expectOne(res, "task", t.ID)
}

// SearchTasks returns matching tasks, newest first.
func (s *SQLite) SearchTasks(ctx context.Context, q TaskQuery) ([]reminder.Task, error) {
	var (
		where []string
		args  []any
	)
	if q.Brief != "" {
		where = append(where, `t.brief LIKE '%' || ? || '%'`)
		args = append(args, q.Brief)
	}
	if q.Detail != "" {
		where = append(where, `t.detail LIKE '%' || ? || '%'`)
		args = append(args, q.Detail)
	}
	if q.State != "" {
		where = append(where, `t.state = ?`)
		args = append(args, q.State)
	}
	if q.Context != "" {
		where = append(where, `r.context = ?`)
		args = append(args, q.Context)
	}
	if q.RemindID != 0 {
		where = append(where, `t.remind_id = ?`)
		args = append(args, q.RemindID)
	}

	query := `SELECT t.id, t.brief, t.detail, t.device, t.icon, t.icon_file, t.state, t.remind_id, t.create_at, t.update_at
		FROM task t LEFT JOIN remind r ON r.id = t.remind_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY t.id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	defer rows.Close()

	var out []reminder.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DeleteTask drops the task's queue entry, closes its reminder and deletes
// the task in one transaction, so no later poll can fire it.
func (s *SQLite) DeleteTask(ctx context.Context, id int64) error {
	return s.InTx(ctx, func(tx *SQLite) error {
		t, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM queue WHERE task_id = ? OR remind_id = ?`, id, t.RemindID); err != nil {
			return fmt.Errorf("remove queue entries: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx, `UPDATE remind SET closed = 1, update_at = ? WHERE task_id = ?`, time.Now().Unix(), id); err != nil {
			return fmt.Errorf("close reminders: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM task WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

func expectOne(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &reminder.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}
