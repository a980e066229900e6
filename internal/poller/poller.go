// Package poller periodically pulls due entries from the delay queue and
// fires them through the reminder engine with bounded concurrency.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"cuckoo/internal/reminder"
	logx "cuckoo/pkg/logx"
)

type Config struct {
	Interval    time.Duration
	Workers     int
	FireTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

// Firer is the part of *reminder.Engine the poller drives.
type Firer interface {
	Fire(ctx context.Context, entry reminder.QueueEntry, currentContext string) (reminder.Outcome, error)
}

// TickReport summarizes one poll.
type TickReport struct {
	Due    int `json:"due"`
	Fired  int `json:"fired"`
	Stale  int `json:"stale"`
	Failed int `json:"failed"`
}

type Poller struct {
	firer  Firer
	queue  reminder.Queue
	detect reminder.ContextProvider
	log    logx.Logger
	now    func() time.Time

	mu     sync.Mutex
	cfg    Config
	loc    *time.Location
	c      *cron.Cron
	runCtx context.Context
	gen    int // bumped per Run; a stale Run leaves a newer trigger alone
	tick   sync.Mutex
}

type Option func(*Poller)

func WithLogger(log logx.Logger) Option { return func(p *Poller) { p.log = log } }

func WithClock(now func() time.Time) Option { return func(p *Poller) { p.now = now } }

func WithLocation(loc *time.Location) Option { return func(p *Poller) { p.loc = loc } }

func New(firer Firer, queue reminder.Queue, detect reminder.ContextProvider, cfg Config, opts ...Option) *Poller {
	p := &Poller{
		firer:  firer,
		queue:  queue,
		detect: detect,
		log:    logx.Nop(),
		now:    time.Now,
		cfg:    cfg.withDefaults(),
		loc:    time.Local,
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With(logx.String("comp", "poller"))
	return p
}

// Tick fires every entry due at or before now. Entries whose reminder or
// task vanished are logged and skipped; other failures are joined into the
// returned error and leave their entry queued for the next tick.
func (p *Poller) Tick(ctx context.Context) (TickReport, error) {
	p.tick.Lock()
	defer p.tick.Unlock()

	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()

	var rep TickReport
	due, err := p.queue.ListDue(ctx, p.now().Unix())
	if err != nil {
		return rep, fmt.Errorf("list due: %w", err)
	}
	rep.Due = len(due)
	if len(due) == 0 {
		return rep, nil
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(cfg.Workers)
	for _, entry := range due {
		entry := entry
		g.Go(func() error {
			err := p.fire(ctx, entry, cfg.FireTimeout)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				rep.Fired++
			case errors.Is(err, reminder.ErrNotFound):
				rep.Stale++
				p.log.Warn("dropped stale entry", logx.Int64("remind_id", entry.RemindID), logx.Err(err))
			default:
				rep.Failed++
				errs = append(errs, err)
				p.log.Error("fire failed", logx.Int64("remind_id", entry.RemindID), logx.Err(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if rep.Fired > 0 || rep.Failed > 0 {
		p.log.Info("tick", logx.Int("due", rep.Due), logx.Int("fired", rep.Fired), logx.Int("stale", rep.Stale), logx.Int("failed", rep.Failed))
	}
	return rep, errors.Join(errs...)
}

func (p *Poller) fire(ctx context.Context, entry reminder.QueueEntry, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	current := ""
	if p.detect != nil {
		c, err := p.detect.Current(ctx)
		if err != nil {
			p.log.Warn("context detection failed", logx.Err(err))
		} else {
			current = c
		}
	}
	out, err := p.firer.Fire(ctx, entry, current)
	if err != nil {
		return err
	}
	p.log.Debug("fired",
		logx.Int64("remind_id", entry.RemindID),
		logx.String("state", out.State.String()),
		logx.String("context", current),
	)
	return nil
}

// Run ticks on the configured interval until ctx is done. Overlapping ticks
// are skipped.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.runCtx = ctx
	if err := p.restartLocked(ctx); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	if _, err := p.Tick(ctx); err != nil {
		p.log.Warn("initial tick failed", logx.Err(err))
	}

	<-ctx.Done()
	p.mu.Lock()
	var c *cron.Cron
	if p.gen == gen {
		c, p.c, p.runCtx = p.c, nil, nil
	}
	p.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
	return nil
}

// Apply changes interval, workers, timeout and timezone. A running trigger
// is rebuilt and keeps ticking under the context Run was given.
func (p *Poller) Apply(cfg Config, loc *time.Location) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg.withDefaults()
	if loc != nil {
		p.loc = loc
	}
	if p.c == nil || p.runCtx == nil {
		return nil
	}
	return p.restartLocked(p.runCtx)
}

// Config returns the active settings.
func (p *Poller) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

func (p *Poller) restartLocked(ctx context.Context) error {
	if p.c != nil {
		// An in-flight tick needs p.mu; do not wait for it here. The tick
		// mutex keeps it from overlapping the new trigger's first run.
		p.c.Stop()
	}
	cl := logx.CronLogger(p.log)
	c := cron.New(
		cron.WithLocation(p.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	spec := "@every " + p.cfg.Interval.String()
	if _, err := c.AddFunc(spec, func() {
		if _, err := p.Tick(ctx); err != nil {
			p.log.Warn("tick failed", logx.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("poll trigger %q: %w", spec, err)
	}
	c.Start()
	p.c = c
	p.log.Info("trigger started", logx.Duration("interval", p.cfg.Interval), logx.Int("workers", p.cfg.Workers), logx.String("tz", p.loc.String()))
	return nil
}
