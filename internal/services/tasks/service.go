// Package tasks is the task-level API shared by the CLI, the HTTP server and
// the MCP tool server: create, search, edit, pause/resume and delete tasks,
// attach reminders and keep the delay queue in step with them.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cuckoo/internal/eventbus"
	"cuckoo/internal/reminder"
	"cuckoo/internal/repeat"
	"cuckoo/internal/storage"
	logx "cuckoo/pkg/logx"
)

// ValidationError reports bad caller input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Msg }

// IsInvalidInput reports whether err is caused by caller input.
func IsInvalidInput(err error) bool {
	var ve *ValidationError
	var ip *repeat.InvalidPatternError
	return errors.As(err, &ve) || errors.As(err, &ip)
}

// RemindSpec configures a task's reminder.
type RemindSpec struct {
	At              int64  `json:"timestamp"`
	Repeat          string `json:"repeat_type,omitempty"`
	Context         string `json:"context,omitempty"`
	RestrictedHours []bool `json:"restricted_hours,omitempty"`
}

// RemindPatch edits a reminder; nil fields are left alone. An empty Repeat
// makes the reminder one-shot.
type RemindPatch struct {
	At              *int64  `json:"timestamp,omitempty"`
	Repeat          *string `json:"repeat_type,omitempty"`
	Context         *string `json:"context,omitempty"`
	RestrictedHours *[]bool `json:"restricted_hours,omitempty"`
}

type NewTask struct {
	Brief    string      `json:"brief"`
	Detail   string      `json:"detail,omitempty"`
	Device   string      `json:"device,omitempty"`
	Icon     string      `json:"icon,omitempty"`
	IconFile string      `json:"icon_file,omitempty"`
	State    string      `json:"state,omitempty"`
	Remind   *RemindSpec `json:"remind,omitempty"`
}

// TaskPatch edits a task; nil fields are left alone.
type TaskPatch struct {
	Brief    *string `json:"brief,omitempty"`
	Detail   *string `json:"detail,omitempty"`
	Device   *string `json:"device,omitempty"`
	Icon     *string `json:"icon,omitempty"`
	IconFile *string `json:"icon_file,omitempty"`
	State    *string `json:"state,omitempty"`
}

// View is a task with its reminder and queued fire time.
type View struct {
	reminder.Task
	Remind   *reminder.Reminder `json:"remind,omitempty"`
	QueuedAt int64              `json:"queued_at,omitempty"`
}

type Service struct {
	st        *storage.SQLite
	following *reminder.Following
	log       logx.Logger
	bus       eventbus.Bus
	loc       *time.Location
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(l logx.Logger) Option { return func(s *Service) { s.log = l } }
func WithBus(b eventbus.Bus) Option { return func(s *Service) { s.bus = b } }
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(st *storage.SQLite, opts ...Option) *Service {
	s := &Service{st: st, log: logx.Nop(), bus: eventbus.Discard, loc: time.Local, now: time.Now}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	s.log = s.log.With(logx.String("comp", "tasks"))
	s.following = reminder.NewFollowing(st, reminder.WithLocation(s.loc))
	return s
}

// Location is the zone used for calendar math and listings.
func (s *Service) Location() *time.Location { return s.loc }

func validState(state string) bool {
	switch state {
	case reminder.TaskActive, reminder.TaskPaused, reminder.TaskDone:
		return true
	}
	return false
}

func parseRepeat(raw string) (*repeat.Pattern, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	p, err := repeat.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (spec RemindSpec) build() (*reminder.Reminder, error) {
	if spec.At <= 0 {
		return nil, &ValidationError{Field: "timestamp", Msg: "must be a positive unix time"}
	}
	p, err := parseRepeat(spec.Repeat)
	if err != nil {
		return nil, err
	}
	if err := reminder.ValidateRestrictedHours(spec.RestrictedHours); err != nil {
		return nil, &ValidationError{Field: "restricted_hours", Msg: err.Error()}
	}
	return &reminder.Reminder{
		Context:         strings.TrimSpace(spec.Context),
		RestrictedHours: spec.RestrictedHours,
		NextFireAt:      spec.At,
		Repeat:          p,
	}, nil
}

// Create inserts a task and, when given, its reminder. Active tasks with a
// reminder are queued immediately.
func (s *Service) Create(ctx context.Context, in NewTask) (*View, error) {
	task := reminder.Task{
		Brief:    strings.TrimSpace(in.Brief),
		Detail:   in.Detail,
		Device:   in.Device,
		Icon:     in.Icon,
		IconFile: in.IconFile,
		State:    in.State,
	}
	if task.Brief == "" {
		return nil, &ValidationError{Field: "brief", Msg: "is required"}
	}
	if task.State == "" {
		task.State = reminder.TaskActive
	}
	if !validState(task.State) {
		return nil, &ValidationError{Field: "state", Msg: fmt.Sprintf("unknown state %q", task.State)}
	}
	var rem *reminder.Reminder
	if in.Remind != nil {
		r, err := in.Remind.build()
		if err != nil {
			return nil, err
		}
		rem = r
	}

	err := s.st.InTx(ctx, func(tx *storage.SQLite) error {
		if err := tx.CreateTask(ctx, &task); err != nil {
			return err
		}
		if rem == nil {
			return nil
		}
		rem.TaskID = task.ID
		if err := tx.CreateReminder(ctx, rem); err != nil {
			return err
		}
		task.RemindID = rem.ID
		if err := tx.UpdateTask(ctx, &task); err != nil {
			return err
		}
		return s.schedule(ctx, tx, &task, rem)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("task created", logx.Int64("task_id", task.ID), logx.Bool("remind", rem != nil))
	s.publish("task.created", task.ID)
	return s.Get(ctx, task.ID)
}

// Get returns the task with its reminder and queue state.
func (s *Service) Get(ctx context.Context, id int64) (*View, error) {
	return s.view(ctx, s.st, id)
}

func (s *Service) view(ctx context.Context, st *storage.SQLite, id int64) (*View, error) {
	task, err := st.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	v := &View{Task: *task}
	if task.RemindID == 0 {
		return v, nil
	}
	rem, err := st.GetReminder(ctx, task.RemindID)
	if errors.Is(err, reminder.ErrNotFound) {
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	v.Remind = rem
	if e, ok, err := st.QueuedAt(ctx, rem.ID); err != nil {
		return nil, err
	} else if ok {
		v.QueuedAt = e.FireAt
	}
	return v, nil
}

// Update edits task fields. A state change goes through SetState so the
// queue follows it.
func (s *Service) Update(ctx context.Context, id int64, p TaskPatch) (*View, error) {
	if p.Brief != nil && strings.TrimSpace(*p.Brief) == "" {
		return nil, &ValidationError{Field: "brief", Msg: "is required"}
	}
	if p.State != nil && !validState(*p.State) {
		return nil, &ValidationError{Field: "state", Msg: fmt.Sprintf("unknown state %q", *p.State)}
	}
	task, err := s.st.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	if p.Brief != nil {
		task.Brief = strings.TrimSpace(*p.Brief)
	}
	set(&task.Detail, p.Detail)
	set(&task.Device, p.Device)
	set(&task.Icon, p.Icon)
	set(&task.IconFile, p.IconFile)
	if err := s.st.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	if p.State != nil && *p.State != task.State {
		return s.SetState(ctx, id, *p.State)
	}
	s.log.Info("task updated", logx.Int64("task_id", id))
	return s.Get(ctx, id)
}

func (s *Service) Search(ctx context.Context, q storage.TaskQuery) ([]reminder.Task, error) {
	return s.st.SearchTasks(ctx, q)
}

// Delete removes the task's queue entry, closes its reminder and deletes it,
// atomically.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.st.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.log.Info("task deleted", logx.Int64("task_id", id))
	s.publish("task.deleted", id)
	return nil
}

// Duplicate copies a task and its reminder. The copy's detail is prefixed
// with "复制自<id> ".
func (s *Service) Duplicate(ctx context.Context, id int64) (*View, error) {
	var copyID int64
	err := s.st.InTx(ctx, func(tx *storage.SQLite) error {
		src, err := s.view(ctx, tx, id)
		if err != nil {
			return err
		}
		task := src.Task
		task.ID = 0
		task.RemindID = 0
		task.CreatedAt = 0
		task.Detail = fmt.Sprintf("复制自%d %s", src.ID, src.Detail)
		if err := tx.CreateTask(ctx, &task); err != nil {
			return err
		}
		copyID = task.ID
		if src.Remind == nil {
			return nil
		}
		rem := *src.Remind
		rem.ID = 0
		rem.TaskID = task.ID
		rem.CreatedAt = 0
		if rem.RestrictedHours != nil {
			rem.RestrictedHours = append([]bool(nil), rem.RestrictedHours...)
		}
		if err := tx.CreateReminder(ctx, &rem); err != nil {
			return err
		}
		task.RemindID = rem.ID
		if err := tx.UpdateTask(ctx, &task); err != nil {
			return err
		}
		if rem.Closed {
			return nil
		}
		return s.schedule(ctx, tx, &task, &rem)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("task duplicated", logx.Int64("task_id", id), logx.Int64("copy_id", copyID))
	s.publish("task.created", copyID)
	return s.Get(ctx, copyID)
}

// Remind sets (or replaces) the task's reminder and requeues it.
func (s *Service) Remind(ctx context.Context, taskID int64, spec RemindSpec) (*reminder.Reminder, error) {
	next, err := spec.build()
	if err != nil {
		return nil, err
	}
	err = s.st.InTx(ctx, func(tx *storage.SQLite) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		next.TaskID = task.ID
		if task.RemindID != 0 {
			if cur, err := tx.GetReminder(ctx, task.RemindID); err == nil {
				next.ID = cur.ID
				next.CreatedAt = cur.CreatedAt
				next.UpdatedAt = s.now().Unix()
				if err := tx.PutReminder(ctx, next); err != nil {
					return err
				}
				return s.schedule(ctx, tx, task, next)
			} else if !errors.Is(err, reminder.ErrNotFound) {
				return err
			}
		}
		if err := tx.CreateReminder(ctx, next); err != nil {
			return err
		}
		task.RemindID = next.ID
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		return s.schedule(ctx, tx, task, next)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("reminder set", logx.Int64("task_id", taskID), logx.Int64("remind_id", next.ID), logx.Unix("at", next.NextFireAt))
	return next, nil
}

// PatchReminder edits a reminder in place. Changing the time reopens a
// closed reminder.
func (s *Service) PatchReminder(ctx context.Context, remindID int64, p RemindPatch) (*reminder.Reminder, error) {
	var out *reminder.Reminder
	err := s.st.InTx(ctx, func(tx *storage.SQLite) error {
		rem, err := tx.GetReminder(ctx, remindID)
		if err != nil {
			return err
		}
		if p.At != nil {
			if *p.At <= 0 {
				return &ValidationError{Field: "timestamp", Msg: "must be a positive unix time"}
			}
			rem.NextFireAt = *p.At
			rem.Closed = false
		}
		if p.Repeat != nil {
			pat, err := parseRepeat(*p.Repeat)
			if err != nil {
				return err
			}
			rem.Repeat = pat
		}
		if p.Context != nil {
			rem.Context = strings.TrimSpace(*p.Context)
		}
		if p.RestrictedHours != nil {
			if err := reminder.ValidateRestrictedHours(*p.RestrictedHours); err != nil {
				return &ValidationError{Field: "restricted_hours", Msg: err.Error()}
			}
			rem.RestrictedHours = *p.RestrictedHours
		}
		rem.UpdatedAt = s.now().Unix()
		if err := tx.PutReminder(ctx, rem); err != nil {
			return err
		}
		out = rem
		if rem.Closed {
			return nil
		}
		task, err := tx.GetTask(ctx, rem.TaskID)
		if err != nil {
			return err
		}
		return s.schedule(ctx, tx, task, rem)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("reminder patched", logx.Int64("remind_id", remindID))
	return out, nil
}

// SetState pauses or resumes a task. Pausing drops its queue entry; resuming
// queues an open reminder at its next occurrence not before now.
func (s *Service) SetState(ctx context.Context, id int64, state string) (*View, error) {
	if !validState(state) {
		return nil, &ValidationError{Field: "state", Msg: fmt.Sprintf("unknown state %q", state)}
	}
	err := s.st.InTx(ctx, func(tx *storage.SQLite) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		task.State = state
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		if task.RemindID == 0 {
			return nil
		}
		if state != reminder.TaskActive {
			return tx.Remove(ctx, task.RemindID)
		}
		rem, err := tx.GetReminder(ctx, task.RemindID)
		if errors.Is(err, reminder.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if rem.Closed {
			return nil
		}
		return s.schedule(ctx, tx, task, rem)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("task state changed", logx.Int64("task_id", id), logx.String("state", state))
	s.publish("task.state", id)
	return s.Get(ctx, id)
}

// Following lists upcoming deliverable reminders in queue order.
func (s *Service) Following(ctx context.Context, currentContext string) ([]reminder.Upcoming, error) {
	entries, err := s.st.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.following.Build(ctx, entries, currentContext)
}

// Logs returns a task's delivery history, newest first.
func (s *Service) Logs(ctx context.Context, taskID int64, limit int) ([]reminder.RemindLog, error) {
	if _, err := s.st.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return s.st.ListRemindLogs(ctx, taskID, limit)
}

// schedule replaces the reminder's queue entry. A recurring reminder whose
// time already passed is advanced to its next occurrence first. Inactive
// tasks are only dequeued.
func (s *Service) schedule(ctx context.Context, tx *storage.SQLite, task *reminder.Task, rem *reminder.Reminder) error {
	if err := tx.Remove(ctx, rem.ID); err != nil {
		return err
	}
	if !task.Active() || rem.Closed {
		return nil
	}
	now := s.now().Unix()
	if rem.Recurring() && rem.NextFireAt < now {
		rem.NextFireAt = rem.Repeat.NextUnix(rem.NextFireAt, now, s.loc)
		rem.UpdatedAt = now
		if err := tx.PutReminder(ctx, rem); err != nil {
			return err
		}
	}
	return tx.Enqueue(ctx, reminder.QueueEntry{TaskID: task.ID, RemindID: rem.ID, FireAt: rem.NextFireAt})
}

func (s *Service) publish(typ string, taskID int64) {
	s.bus.Publish(eventbus.Event{Type: typ, Data: taskID})
}
