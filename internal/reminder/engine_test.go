package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"cuckoo/internal/eventbus"
	"cuckoo/internal/repeat"
)

var testNow = time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store *memStore
	queue *memQueue
	disp  *fakeDispatcher
	eng   *Engine
}

func newFixture(t *testing.T, task Task, rem Reminder, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		queue: newMemQueue(QueueEntry{TaskID: task.ID, RemindID: rem.ID, FireAt: rem.NextFireAt}),
		disp:  &fakeDispatcher{},
	}
	f.store.addTask(task)
	f.store.addReminder(rem)
	base := []Option{WithLocation(time.UTC), WithClock(func() time.Time { return testNow })}
	f.eng = New(f.store, f.queue, f.disp, append(base, opts...)...)
	return f
}

func daily() *repeat.Pattern {
	p := repeat.MustParse("daily")
	return &p
}

func (f *fixture) fire(t *testing.T, current string) (Outcome, error) {
	t.Helper()
	entries, err := f.queue.ListDue(context.Background(), testNow.Unix())
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("due entries = %d, want 1", len(entries))
	}
	return f.eng.Fire(context.Background(), entries[0], current)
}

func TestFireInactiveTaskIsSuppressed(t *testing.T) {
	t.Parallel()
	planned := testNow.Add(-time.Minute).Unix()
	f := newFixture(t,
		Task{ID: 1, Brief: "water plants", State: TaskPaused},
		Reminder{ID: 10, TaskID: 1, NextFireAt: planned, Repeat: daily()},
	)

	out, err := f.fire(t, "")
	if err != nil {
		t.Fatalf("Fire error: %v", err)
	}
	if out.State != StateSuppressedInactive {
		t.Fatalf("State = %v, want %v", out.State, StateSuppressedInactive)
	}
	if n := f.store.logCount(); n != 0 {
		t.Fatalf("remind logs = %d, want 0", n)
	}
	if f.disp.calls() != 0 {
		t.Fatal("dispatcher should not be called for an inactive task")
	}
	if n := f.queue.size(); n != 0 {
		t.Fatalf("queue size = %d, want 0", n)
	}
	if got := f.store.reminder(10); got.NextFireAt != planned || got.Closed {
		t.Fatalf("reminder mutated: %+v", got)
	}
}

func TestFireContextMismatch(t *testing.T) {
	t.Parallel()
	planned := testNow.Add(-time.Minute).Unix()
	tests := []struct {
		name      string
		repeat    *repeat.Pattern
		current   string
		wantEntry bool
	}{
		{name: "recurring other context", repeat: daily(), current: "home", wantEntry: true},
		{name: "recurring unknown context", repeat: daily(), current: "", wantEntry: true},
		{name: "one-shot", repeat: nil, current: "home", wantEntry: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t,
				Task{ID: 1, Brief: "standup", State: TaskActive},
				Reminder{ID: 10, TaskID: 1, Context: "office", NextFireAt: planned, Repeat: tt.repeat},
			)
			out, err := f.fire(t, tt.current)
			if err != nil {
				t.Fatalf("Fire error: %v", err)
			}
			if out.State != StateSuppressedContext {
				t.Fatalf("State = %v, want %v", out.State, StateSuppressedContext)
			}
			if out.Delivered || f.disp.calls() != 0 {
				t.Fatal("mismatched context must not be delivered")
			}
			if n := f.store.logCount(); n != 0 {
				t.Fatalf("remind logs = %d, want 0", n)
			}
			e, ok := f.queue.get(10)
			if ok != tt.wantEntry {
				t.Fatalf("queue entry present = %v, want %v", ok, tt.wantEntry)
			}
			rem := f.store.reminder(10)
			if tt.wantEntry {
				want := planned + 86400
				if e.FireAt != want || rem.NextFireAt != want {
					t.Fatalf("rescheduled to %d (stored %d), want %d", e.FireAt, rem.NextFireAt, want)
				}
				if rem.Closed {
					t.Fatal("recurring reminder must stay open")
				}
			} else if !rem.Closed {
				t.Fatal("one-shot reminder should be closed")
			}
		})
	}
}

func TestFireMatchingContextDelivers(t *testing.T) {
	t.Parallel()
	planned := testNow.Add(-time.Minute).Unix()
	f := newFixture(t,
		Task{ID: 3, Brief: "water plants", Detail: "balcony", Device: "mac", Icon: "leaf", State: TaskActive},
		Reminder{ID: 30, TaskID: 3, Context: "home", NextFireAt: planned},
	)
	out, err := f.fire(t, "home")
	if err != nil {
		t.Fatalf("Fire error: %v", err)
	}
	if !out.Delivered {
		t.Fatal("expected delivery")
	}
	if f.disp.calls() != 1 {
		t.Fatalf("dispatcher calls = %d, want 1", f.disp.calls())
	}
	want := Payload{TaskID: 3, Brief: "#3 water plants", Detail: "balcony", Device: "mac", Icon: "leaf", AlarmAt: planned}
	if got := f.disp.payloads[0]; got != want {
		t.Fatalf("payload = %+v, want %+v", got, want)
	}
	logs := f.store.logs
	if len(logs) != 1 || logs[0].PlannedAt != planned || logs[0].ActualAt != testNow.Unix() || logs[0].TaskID != 3 {
		t.Fatalf("remind logs = %+v", logs)
	}
}

func TestFireSnooze(t *testing.T) {
	t.Parallel()
	planned := testNow.Add(-30 * time.Second).Unix()
	tests := []struct {
		activation string
		kind       SnoozeKind
		want       time.Time
	}{
		{activation: "5分钟后再提醒", kind: SnoozeKindMinutes, want: testNow.Add(5 * time.Minute)},
		{activation: "2小时后再提醒", kind: SnoozeKindHours, want: testNow.Add(2 * time.Hour)},
		{activation: "8点时再提醒", kind: SnoozeKindNextMorning, want: time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.activation, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t,
				Task{ID: 1, Brief: "stretch", State: TaskActive},
				Reminder{ID: 10, TaskID: 1, NextFireAt: planned, Repeat: daily()},
			)
			f.disp.resp = Response{ActivationValue: tt.activation}

			out, err := f.fire(t, "")
			if err != nil {
				t.Fatalf("Fire error: %v", err)
			}
			if out.State != StateSnoozed || out.Snooze.Kind != tt.kind {
				t.Fatalf("outcome = %+v, want snoozed %v", out, tt.kind)
			}
			e, ok := f.queue.get(10)
			if !ok {
				t.Fatal("snoozed reminder should be queued")
			}
			if e.FireAt != tt.want.Unix() || e.RemindID != 10 || e.TaskID != 1 {
				t.Fatalf("entry = %+v, want fire_at %d", e, tt.want.Unix())
			}
			rem := f.store.reminder(10)
			if rem.NextFireAt != planned || rem.Closed {
				t.Fatalf("stored reminder changed by snooze: %+v", rem)
			}
			if f.store.logCount() != 1 {
				t.Fatalf("remind logs = %d, want 1", f.store.logCount())
			}
		})
	}
}

func TestFireOneShotCloses(t *testing.T) {
	t.Parallel()
	f := newFixture(t,
		Task{ID: 1, Brief: "call mom", State: TaskActive},
		Reminder{ID: 10, TaskID: 1, NextFireAt: testNow.Unix()},
	)
	f.disp.resp = Response{ActivationValue: ActivationDismiss}

	out, err := f.fire(t, "")
	if err != nil {
		t.Fatalf("Fire error: %v", err)
	}
	if out.State != StateClosed || !out.Closed {
		t.Fatalf("outcome = %+v, want closed", out)
	}
	if !f.store.reminder(10).Closed {
		t.Fatal("reminder should be closed")
	}
	if n := f.queue.size(); n != 0 {
		t.Fatalf("queue size = %d, want 0", n)
	}
}

func TestFireRecurringContinues(t *testing.T) {
	t.Parallel()
	// Down for three days: the next occurrence catches up past now.
	planned := testNow.Add(-3*24*time.Hour - time.Hour).Unix()
	f := newFixture(t,
		Task{ID: 1, Brief: "vitamins", State: TaskActive},
		Reminder{ID: 10, TaskID: 1, NextFireAt: planned, Repeat: daily()},
	)

	out, err := f.fire(t, "")
	if err != nil {
		t.Fatalf("Fire error: %v", err)
	}
	want := planned + 4*86400
	if out.State != StateContinued || out.NextFireAt != want {
		t.Fatalf("outcome = %+v, want continued at %d", out, want)
	}
	if e, ok := f.queue.get(10); !ok || e.FireAt != want {
		t.Fatalf("entry = %+v (present %v), want fire_at %d", e, ok, want)
	}
	rem := f.store.reminder(10)
	if rem.Closed || rem.NextFireAt != want {
		t.Fatalf("stored reminder = %+v", rem)
	}
	for i, op := range f.queue.ops {
		if op == "enqueue" && (i == 0 || f.queue.ops[i-1] != "remove") {
			t.Fatalf("enqueue without preceding remove: %v", f.queue.ops)
		}
	}
}

func TestFireDispatchErrorKeepsEntry(t *testing.T) {
	t.Parallel()
	f := newFixture(t,
		Task{ID: 1, Brief: "pay rent", State: TaskActive},
		Reminder{ID: 10, TaskID: 1, NextFireAt: testNow.Unix()},
	)
	f.disp.err = context.DeadlineExceeded

	_, err := f.fire(t, "")
	var de *DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *DispatchError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("DispatchError should unwrap to the transport error")
	}
	if _, ok := f.queue.get(10); !ok {
		t.Fatal("entry should stay queued for retry")
	}
	if f.store.reminder(10).Closed {
		t.Fatal("reminder must not be closed on dispatch failure")
	}
}

func TestFireFinishesAfterDeadline(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		repeat     *repeat.Pattern
		activation string
		want       State
	}{
		{name: "one-shot", want: StateClosed},
		{name: "recurring", repeat: daily(), want: StateContinued},
		{name: "snoozed", activation: "5分钟后再提醒", want: StateSnoozed},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			planned := testNow.Add(-time.Minute).Unix()
			f := newFixture(t,
				Task{ID: 1, Brief: "pay rent", State: TaskActive},
				Reminder{ID: 10, TaskID: 1, NextFireAt: planned, Repeat: tt.repeat},
			)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			f.disp.resp = Response{ActivationValue: tt.activation}
			f.disp.after = cancel

			out, err := f.eng.Fire(ctx, QueueEntry{TaskID: 1, RemindID: 10, FireAt: planned}, "")
			if err != nil {
				t.Fatalf("Fire error: %v", err)
			}
			if out.State != tt.want {
				t.Fatalf("State = %v, want %v", out.State, tt.want)
			}
			e, queued := f.queue.get(10)
			switch tt.want {
			case StateClosed:
				if queued || !f.store.reminder(10).Closed {
					t.Fatalf("one-shot not retired: queued %v, stored %+v", queued, f.store.reminder(10))
				}
			default:
				if !queued || e.FireAt <= planned {
					t.Fatalf("entry = %+v (present %v), want moved past %d", e, queued, planned)
				}
			}

			// Nothing is left due, so the next tick does not show it again.
			due, _ := f.queue.ListDue(context.Background(), testNow.Unix())
			if len(due) != 0 {
				t.Fatalf("still due after delivery: %+v", due)
			}
		})
	}
}

func TestFireMalformedResponse(t *testing.T) {
	t.Parallel()
	f := newFixture(t,
		Task{ID: 1, Brief: "pay rent", State: TaskActive},
		Reminder{ID: 10, TaskID: 1, NextFireAt: testNow.Unix()},
	)
	_, decodeErr := DecodeResponse([]byte("clicked"))
	f.disp.err = decodeErr

	_, err := f.fire(t, "")
	var mr *MalformedResponseError
	if !errors.As(err, &mr) {
		t.Fatalf("error = %v, want *MalformedResponseError", err)
	}
	var de *DispatchError
	if errors.As(err, &de) {
		t.Fatal("malformed response should not be reported as a dispatch error")
	}
}

func TestFireNotFound(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		task *Task
		rem  Reminder
	}{
		{name: "closed reminder", task: &Task{ID: 1, State: TaskActive}, rem: Reminder{ID: 10, TaskID: 1, Closed: true}},
		{name: "missing task", task: nil, rem: Reminder{ID: 10, TaskID: 1}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newMemStore()
			if tt.task != nil {
				store.addTask(*tt.task)
			}
			store.addReminder(tt.rem)
			q := newMemQueue(QueueEntry{TaskID: 1, RemindID: 10, FireAt: testNow.Unix()})
			eng := New(store, q, &fakeDispatcher{}, WithClock(func() time.Time { return testNow }))

			_, err := eng.Fire(context.Background(), QueueEntry{TaskID: 1, RemindID: 10, FireAt: testNow.Unix()}, "")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("error = %v, want ErrNotFound", err)
			}
			if q.size() != 0 {
				t.Fatal("stale entry should be removed")
			}
		})
	}

	t.Run("missing reminder", func(t *testing.T) {
		t.Parallel()
		q := newMemQueue(QueueEntry{TaskID: 1, RemindID: 99, FireAt: testNow.Unix()})
		eng := New(newMemStore(), q, &fakeDispatcher{})
		_, err := eng.Fire(context.Background(), QueueEntry{TaskID: 1, RemindID: 99}, "")
		var nf *NotFoundError
		if !errors.As(err, &nf) || nf.Entity != "remind" || nf.ID != 99 {
			t.Fatalf("error = %v, want remind 99 not found", err)
		}
	})
}

func TestFirePublishesOutcome(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8, "reminder.")
	defer unsub()

	f := newFixture(t,
		Task{ID: 1, Brief: "stretch", State: TaskActive},
		Reminder{ID: 10, TaskID: 1, NextFireAt: testNow.Unix(), Repeat: daily()},
		WithBus(bus),
	)
	f.disp.resp = Response{ActivationValue: ActivationSnooze5Min}
	if _, err := f.fire(t, ""); err != nil {
		t.Fatalf("Fire error: %v", err)
	}

	var types []string
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	if len(types) != 2 || types[0] != EventDelivered || types[1] != EventSnoozed {
		t.Fatalf("events = %v, want [%s %s]", types, EventDelivered, EventSnoozed)
	}
}
