package poller

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cuckoo/internal/reminder"
)

var testNow = time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

type fakeQueue struct {
	mu      sync.Mutex
	entries []reminder.QueueEntry
	upTo    int64
}

func (q *fakeQueue) Enqueue(context.Context, reminder.QueueEntry) error { return nil }
func (q *fakeQueue) Remove(context.Context, int64) error                { return nil }
func (q *fakeQueue) List(context.Context) ([]reminder.QueueEntry, error) {
	return q.entries, nil
}

func (q *fakeQueue) ListDue(_ context.Context, upTo int64) ([]reminder.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.upTo = upTo
	var out []reminder.QueueEntry
	for _, e := range q.entries {
		if e.FireAt <= upTo {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeFirer struct {
	mu       sync.Mutex
	fired    []int64
	contexts []string
	errs     map[int64]error
	delay    time.Duration
	running  atomic.Int32
	peak     atomic.Int32
}

func (f *fakeFirer) Fire(_ context.Context, e reminder.QueueEntry, current string) (reminder.Outcome, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, e.RemindID)
	f.contexts = append(f.contexts, current)
	if err := f.errs[e.RemindID]; err != nil {
		return reminder.Outcome{}, err
	}
	return reminder.Outcome{State: reminder.StateClosed, RemindID: e.RemindID}, nil
}

type countingDetector struct{ calls atomic.Int32 }

func (d *countingDetector) Current(context.Context) (string, error) {
	d.calls.Add(1)
	return "home", nil
}

func clock() time.Time { return testNow }

func TestTickClassifiesResults(t *testing.T) {
	t.Parallel()
	now := testNow.Unix()
	q := &fakeQueue{entries: []reminder.QueueEntry{
		{RemindID: 1, TaskID: 1, FireAt: now - 60},
		{RemindID: 2, TaskID: 2, FireAt: now - 30},
		{RemindID: 3, TaskID: 3, FireAt: now},
		{RemindID: 4, TaskID: 4, FireAt: now + 1},
	}}
	boom := errors.New("notifier down")
	f := &fakeFirer{errs: map[int64]error{
		2: &reminder.NotFoundError{Entity: "task", ID: 2},
		3: &reminder.DispatchError{RemindID: 3, Err: boom},
	}}
	det := &countingDetector{}
	p := New(f, q, det, Config{Workers: 2}, WithClock(clock))

	rep, err := p.Tick(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Tick() error = %v, want notifier error", err)
	}
	if errors.Is(err, reminder.ErrNotFound) {
		t.Fatalf("stale entries must not surface as errors: %v", err)
	}
	want := TickReport{Due: 3, Fired: 1, Stale: 1, Failed: 1}
	if rep != want {
		t.Fatalf("report = %+v, want %+v", rep, want)
	}
	if q.upTo != now {
		t.Fatalf("ListDue upTo = %d, want %d", q.upTo, now)
	}
	sort.Slice(f.fired, func(i, j int) bool { return f.fired[i] < f.fired[j] })
	if len(f.fired) != 3 || f.fired[0] != 1 || f.fired[2] != 3 {
		t.Fatalf("fired = %v", f.fired)
	}
	if n := det.calls.Load(); n != 3 {
		t.Fatalf("detector calls = %d, want 3", n)
	}
	for _, c := range f.contexts {
		if c != "home" {
			t.Fatalf("context = %q, want home", c)
		}
	}
}

func TestTickBoundsConcurrency(t *testing.T) {
	t.Parallel()
	now := testNow.Unix()
	q := &fakeQueue{}
	for i := int64(1); i <= 8; i++ {
		q.entries = append(q.entries, reminder.QueueEntry{RemindID: i, TaskID: i, FireAt: now})
	}
	f := &fakeFirer{delay: 20 * time.Millisecond}
	p := New(f, q, nil, Config{Workers: 3}, WithClock(clock))
	rep, err := p.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick(): %v", err)
	}
	if rep.Fired != 8 {
		t.Fatalf("fired = %d, want 8", rep.Fired)
	}
	if peak := f.peak.Load(); peak > 3 {
		t.Fatalf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestTickEmpty(t *testing.T) {
	t.Parallel()
	p := New(&fakeFirer{}, &fakeQueue{}, nil, Config{}, WithClock(clock))
	rep, err := p.Tick(context.Background())
	if err != nil || rep != (TickReport{}) {
		t.Fatalf("Tick() = %+v, %v", rep, err)
	}
	if cfg := p.Config(); cfg.Workers != 1 || cfg.Interval != 30*time.Second {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestRunTicksImmediatelyAndStops(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{entries: []reminder.QueueEntry{{RemindID: 1, TaskID: 1, FireAt: testNow.Unix()}}}
	f := &fakeFirer{}
	p := New(f, q, nil, Config{Interval: time.Hour}, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		f.mu.Lock()
		n := len(f.fired)
		f.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("initial tick never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if err := p.Apply(Config{Interval: 2 * time.Hour, Workers: 4}, time.UTC); err != nil {
		t.Fatalf("Apply(): %v", err)
	}
	if p.Config().Workers != 4 {
		t.Fatalf("Apply did not take effect")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestStaleRunLeavesNewTrigger(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{}
	p := New(&fakeFirer{}, q, nil, Config{Interval: time.Hour})

	ctx1, cancel1 := context.WithCancel(context.Background())
	done1 := make(chan error, 1)
	go func() { done1 <- p.Run(ctx1) }()
	waitTrigger(t, p, 1)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	done2 := make(chan error, 1)
	go func() { done2 <- p.Run(ctx2) }()
	waitTrigger(t, p, 2)

	cancel1()
	if err := <-done1; err != nil {
		t.Fatalf("first Run() = %v", err)
	}
	p.mu.Lock()
	running := p.c != nil
	p.mu.Unlock()
	if !running {
		t.Fatal("stale Run stopped the newer trigger")
	}
	cancel2()
	if err := <-done2; err != nil {
		t.Fatalf("second Run() = %v", err)
	}
}

func waitTrigger(t *testing.T, p *Poller, gen int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		ok := p.gen == gen && p.c != nil
		p.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("trigger generation %d never started", gen)
}
