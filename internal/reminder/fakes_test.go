package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type memStore struct {
	mu        sync.Mutex
	reminders map[int64]Reminder
	tasks     map[int64]Task
	logs      []RemindLog
	puts      int
}

func newMemStore() *memStore {
	return &memStore{reminders: map[int64]Reminder{}, tasks: map[int64]Task{}}
}

func (s *memStore) addTask(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

func (s *memStore) addReminder(r Reminder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[r.ID] = r
}

func (s *memStore) GetReminder(_ context.Context, id int64) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, &NotFoundError{Entity: "remind", ID: id}
	}
	return &r, nil
}

func (s *memStore) PutReminder(ctx context.Context, r *Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[r.ID] = *r
	s.puts++
	return nil
}

func (s *memStore) GetTask(_ context.Context, id int64) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, &NotFoundError{Entity: "task", ID: id}
	}
	return &t, nil
}

func (s *memStore) AppendRemindLog(_ context.Context, e RemindLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
	return nil
}

func (s *memStore) logCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

func (s *memStore) reminder(id int64) Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reminders[id]
}

type memQueue struct {
	mu      sync.Mutex
	entries map[int64]QueueEntry
	// ops records "remove:<id>" / "enqueue:<id>" in call order.
	ops []string
}

func newMemQueue(entries ...QueueEntry) *memQueue {
	q := &memQueue{entries: map[int64]QueueEntry{}}
	for _, e := range entries {
		q.entries[e.RemindID] = e
	}
	return q
}

func (q *memQueue) Enqueue(ctx context.Context, e QueueEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.entries[e.RemindID]; dup {
		return errors.New("duplicate live entry")
	}
	q.entries[e.RemindID] = e
	q.ops = append(q.ops, "enqueue")
	return nil
}

func (q *memQueue) Remove(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, id)
	q.ops = append(q.ops, "remove")
	return nil
}

func (q *memQueue) ListDue(ctx context.Context, upTo int64) ([]QueueEntry, error) {
	all, _ := q.List(ctx)
	out := all[:0]
	for _, e := range all {
		if e.FireAt <= upTo {
			out = append(out, e)
		}
	}
	return out, nil
}

func (q *memQueue) List(_ context.Context) ([]QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt != out[j].FireAt {
			return out[i].FireAt < out[j].FireAt
		}
		return out[i].RemindID < out[j].RemindID
	})
	return out, nil
}

func (q *memQueue) get(id int64) (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	return e, ok
}

func (q *memQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

type fakeDispatcher struct {
	mu       sync.Mutex
	resp     Response
	err      error
	payloads []Payload
	// after runs once the payload is recorded, before Notify returns.
	after func()
}

func (d *fakeDispatcher) Notify(_ context.Context, _ *Reminder, p Payload) (Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, p)
	if d.after != nil {
		d.after()
	}
	return d.resp, d.err
}

func (d *fakeDispatcher) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.payloads)
}
