package storage

import (
	"context"
	"fmt"
	"time"

	"cuckoo/internal/reminder"
)

func (s *SQLite) AppendRemindLog(ctx context.Context, e reminder.RemindLog) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO remind_log(task_id, plan_alarm_at, real_alarm_at, create_at) VALUES(?,?,?,?)`,
		e.TaskID, e.PlannedAt, e.ActualAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append remind log: %w", err)
	}
	return nil
}

// ListRemindLogs returns a task's delivery history, newest first.
func (s *SQLite) ListRemindLogs(ctx context.Context, taskID int64, limit int) ([]reminder.RemindLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, task_id, plan_alarm_at, real_alarm_at, create_at FROM remind_log
		 WHERE task_id = ? ORDER BY id DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list remind logs: %w", err)
	}
	defer rows.Close()

	var out []reminder.RemindLog
	for rows.Next() {
		var l reminder.RemindLog
		if err := rows.Scan(&l.ID, &l.TaskID, &l.PlannedAt, &l.ActualAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
