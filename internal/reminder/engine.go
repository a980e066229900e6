package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cuckoo/internal/eventbus"
	logx "cuckoo/pkg/logx"
)

// State is where one firing attempt ended up.
type State int

const (
	StateSuppressedInactive State = iota + 1
	StateSuppressedContext
	StateSnoozed
	StateContinued
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateSuppressedInactive:
		return "suppressed_inactive"
	case StateSuppressedContext:
		return "suppressed_context"
	case StateSnoozed:
		return "snoozed"
	case StateContinued:
		return "continued"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Event types published on the bus.
const (
	EventDelivered   = "reminder.delivered"
	EventSuppressed  = "reminder.suppressed"
	EventSnoozed     = "reminder.snoozed"
	EventRescheduled = "reminder.rescheduled"
	EventClosed      = "reminder.closed"
)

// Outcome describes one firing attempt.
type Outcome struct {
	State     State  `json:"state"`
	RemindID  int64  `json:"remind_id"`
	TaskID    int64  `json:"task_id"`
	PlannedAt int64  `json:"planned_at"`
	Delivered bool   `json:"delivered"`
	// Activation is the raw response value when Delivered.
	Activation string          `json:"activation,omitempty"`
	Snooze     SnoozeDirective `json:"snooze"`
	// NextFireAt is the new queue time, 0 when nothing was re-queued.
	NextFireAt int64 `json:"next_fire_at,omitempty"`
	// Closed is set when the reminder was retired by this attempt.
	Closed bool `json:"closed,omitempty"`
}

// Engine fires due reminders. It owns no goroutines; callers decide
// concurrency, but must not fire the same reminder id twice at once.
type Engine struct {
	store      Store
	queue      Queue
	dispatcher Dispatcher

	log    logx.Logger
	bus    eventbus.Bus
	loc    *time.Location
	now    func() time.Time
	snooze SnoozeParser
}

func New(store Store, queue Queue, dispatcher Dispatcher, opts ...Option) *Engine {
	o := buildOptions(opts)
	return &Engine{
		store:      store,
		queue:      queue,
		dispatcher: dispatcher,
		log:        o.log.With(logx.String("comp", "engine")),
		bus:        o.bus,
		loc:        o.loc,
		now:        o.now,
		snooze:     o.snooze,
	}
}

// Location is the zone used for calendar math.
func (e *Engine) Location() *time.Location { return e.loc }

// Fire resolves entry and fires it. A missing task or reminder, or a closed
// reminder, removes the stale entry and returns a *NotFoundError.
func (e *Engine) Fire(ctx context.Context, entry QueueEntry, currentContext string) (Outcome, error) {
	rem, err := e.store.GetReminder(ctx, entry.RemindID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Outcome{}, e.dropStale(ctx, entry, &NotFoundError{Entity: "remind", ID: entry.RemindID})
		}
		return Outcome{}, fmt.Errorf("get remind %d: %w", entry.RemindID, err)
	}
	if rem.Closed {
		return Outcome{}, e.dropStale(ctx, entry, &NotFoundError{Entity: "remind", ID: entry.RemindID})
	}
	taskID := rem.TaskID
	if taskID == 0 {
		taskID = entry.TaskID
	}
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Outcome{}, e.dropStale(ctx, entry, &NotFoundError{Entity: "task", ID: taskID})
		}
		return Outcome{}, fmt.Errorf("get task %d: %w", taskID, err)
	}
	return e.FireReminder(ctx, rem, task, entry.FireAt, currentContext)
}

func (e *Engine) dropStale(ctx context.Context, entry QueueEntry, nf *NotFoundError) error {
	if err := e.queue.Remove(ctx, entry.RemindID); err != nil {
		return errors.Join(nf, fmt.Errorf("remove stale entry: %w", err))
	}
	e.log.Debug("dropped stale queue entry",
		logx.Int64("remind_id", entry.RemindID),
		logx.Int64("task_id", entry.TaskID),
		logx.String("missing", nf.Entity),
	)
	return nf
}

// FireReminder runs one firing attempt for rem planned at plannedAt.
// rem is updated in place when it is closed or advanced.
func (e *Engine) FireReminder(ctx context.Context, rem *Reminder, task *Task, plannedAt int64, currentContext string) (Outcome, error) {
	now := e.now().In(e.loc)
	out := Outcome{RemindID: rem.ID, TaskID: task.ID, PlannedAt: plannedAt}
	log := e.log.With(logx.Int64("remind_id", rem.ID), logx.Int64("task_id", task.ID))

	if !task.Active() {
		if err := e.queue.Remove(ctx, rem.ID); err != nil {
			return out, fmt.Errorf("remove entry of inactive task: %w", err)
		}
		out.State = StateSuppressedInactive
		log.Debug("task inactive; reminder suppressed", logx.String("state", task.State))
		e.publish(EventSuppressed, out)
		return out, nil
	}

	if rem.Context != "" && rem.Context != currentContext {
		out.State = StateSuppressedContext
		if err := e.closeOrContinue(ctx, rem, now, &out); err != nil {
			return out, err
		}
		log.Debug("context mismatch; reminder suppressed",
			logx.String("want", rem.Context),
			logx.String("current", currentContext),
			logx.Int64("next_fire_at", out.NextFireAt),
		)
		e.publish(EventSuppressed, out)
		return out, nil
	}

	if err := e.store.AppendRemindLog(ctx, RemindLog{
		TaskID:    task.ID,
		PlannedAt: plannedAt,
		ActualAt:  now.Unix(),
		CreatedAt: now.Unix(),
	}); err != nil {
		return out, fmt.Errorf("append remind log: %w", err)
	}

	resp, err := e.dispatcher.Notify(ctx, rem, PayloadFor(task, plannedAt))
	if err != nil {
		var mr *MalformedResponseError
		if errors.As(err, &mr) {
			return out, err
		}
		return out, &DispatchError{RemindID: rem.ID, Err: err}
	}
	// The user has seen it: finish the bookkeeping even if the fire
	// deadline ran out while waiting, or the next tick shows it again.
	ctx = context.WithoutCancel(ctx)
	out.Delivered = true
	out.Activation = resp.ActivationValue
	e.publish(EventDelivered, out)

	dir := e.snooze.Parse(resp.ActivationValue)
	if !dir.IsNone() {
		at := dir.At(now).Unix()
		if err := e.requeue(ctx, QueueEntry{TaskID: task.ID, RemindID: rem.ID, FireAt: at}); err != nil {
			return out, err
		}
		out.State = StateSnoozed
		out.Snooze = dir
		out.NextFireAt = at
		log.Info("reminder snoozed", logx.String("snooze", dir.Kind.String()), logx.Int("n", dir.N), logx.Unix("at", at))
		e.publish(EventSnoozed, out)
		return out, nil
	}

	if err := e.closeOrContinue(ctx, rem, now, &out); err != nil {
		return out, err
	}
	if out.Closed {
		out.State = StateClosed
		log.Info("reminder closed")
		e.publish(EventClosed, out)
	} else {
		out.State = StateContinued
		log.Info("reminder rescheduled", logx.Unix("at", out.NextFireAt))
		e.publish(EventRescheduled, out)
	}
	return out, nil
}

// closeOrContinue retires a one-shot reminder or moves a recurring one to its
// next occurrence not before now.
func (e *Engine) closeOrContinue(ctx context.Context, rem *Reminder, now time.Time, out *Outcome) error {
	if !rem.Recurring() {
		rem.Closed = true
		rem.UpdatedAt = now.Unix()
		if err := e.store.PutReminder(ctx, rem); err != nil {
			return fmt.Errorf("close remind %d: %w", rem.ID, err)
		}
		if err := e.queue.Remove(ctx, rem.ID); err != nil {
			return fmt.Errorf("remove entry of closed remind %d: %w", rem.ID, err)
		}
		out.Closed = true
		out.NextFireAt = 0
		return nil
	}

	next := rem.Repeat.NextUnix(rem.NextFireAt, now.Unix(), e.loc)
	rem.NextFireAt = next
	rem.Closed = false
	rem.UpdatedAt = now.Unix()
	if err := e.store.PutReminder(ctx, rem); err != nil {
		return fmt.Errorf("advance remind %d: %w", rem.ID, err)
	}
	if err := e.requeue(ctx, QueueEntry{TaskID: rem.TaskID, RemindID: rem.ID, FireAt: next}); err != nil {
		return err
	}
	out.NextFireAt = next
	return nil
}

// requeue keeps at most one live entry per reminder: remove, then enqueue.
func (e *Engine) requeue(ctx context.Context, entry QueueEntry) error {
	if err := e.queue.Remove(ctx, entry.RemindID); err != nil {
		return fmt.Errorf("remove entry of remind %d: %w", entry.RemindID, err)
	}
	if err := e.queue.Enqueue(ctx, entry); err != nil {
		return fmt.Errorf("enqueue remind %d: %w", entry.RemindID, err)
	}
	return nil
}

func (e *Engine) publish(typ string, out Outcome) {
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.now(), Data: out})
}
