// Package app wires the daemon: config, logging, storage, the notifier,
// the firing engine, the poll trigger and the HTTP API, all running under
// one supervisor with live config reload.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cuckoo/internal/config"
	"cuckoo/internal/detect"
	"cuckoo/internal/eventbus"
	"cuckoo/internal/notify"
	"cuckoo/internal/poller"
	"cuckoo/internal/reminder"
	"cuckoo/internal/runtime/supervisor"
	"cuckoo/internal/server"
	"cuckoo/internal/services/tasks"
	"cuckoo/internal/storage"
	logx "cuckoo/pkg/logx"
)

// Version is reported by /api/health and the MCP server.
var Version = "dev"

type Option func(*options)

type options struct {
	driver notify.Driver
	log    logx.Logger
}

// WithDriver replaces the configured notifier backend.
func WithDriver(d notify.Driver) Option { return func(o *options) { o.driver = d } }

// WithLogger sends all logs to l instead of the configured sinks. Logging
// config reloads are then ignored.
func WithLogger(l logx.Logger) Option { return func(o *options) { o.log = l } }

type App struct {
	cfgm   *config.Manager
	log    logx.Logger
	logs   *logx.Service
	bus    eventbus.Bus
	store  *storage.SQLite
	loc    *time.Location
	tasks  *tasks.Service
	detect *detect.Swappable

	// Set by New; nil for apps from Open.
	notify *notify.Limited
	engine *reminder.Engine
	poller *poller.Poller
	http   *server.Server

	sup       *supervisor.Supervisor
	startedAt time.Time

	pollMu     sync.Mutex
	pollCancel context.CancelFunc
}

// Open loads the config and opens storage: enough for task management
// from the CLI and the MCP server. Nothing is started.
func Open(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}

	cfgm := config.NewManager(cfgPath)
	cfgm.SetLogger(logx.NewConsole("info"))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &App{cfgm: cfgm, bus: eventbus.New()}
	if o.log.IsZero() {
		a.logs, a.log = logx.New(mapLogging(cfg))
	} else {
		a.log = o.log
	}
	cfgm.SetLogger(a.log)

	a.loc, err = config.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		a.closeLogs()
		return nil, err
	}

	st, err := storage.Open(mapStorage(cfg), a.log.With(logx.String("comp", "storage")))
	if err != nil {
		a.closeLogs()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = st

	p, err := detect.New(mapDetect(cfg), a.log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.detect = detect.NewSwappable(p)

	a.tasks = tasks.New(st,
		tasks.WithLogger(a.log),
		tasks.WithBus(a.bus),
		tasks.WithLocation(a.loc),
	)
	return a, nil
}

// New is Open plus the notifier, engine, poll trigger and HTTP server.
func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	a, err := Open(cfgPath, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.build(o); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(o options) error {
	cfg := a.cfgm.Get()
	nc := mapNotify(cfg)

	driver := o.driver
	if driver == nil {
		d, err := notify.New(nc, a.log)
		if err != nil {
			return err
		}
		driver = d
	}
	a.notify = notify.Limit(driver, nc.RatePerSec, nc.Burst, nc.Timeout)

	a.engine = reminder.New(a.store, a.store, a.notify,
		reminder.WithLogger(a.log),
		reminder.WithBus(a.bus),
		reminder.WithLocation(a.loc),
	)
	a.poller = poller.New(a.engine, a.store, a.detect, mapPoller(cfg),
		poller.WithLogger(a.log.With(logx.String("comp", "poller"))),
		poller.WithLocation(a.loc),
	)
	sopts := []server.Option{
		server.WithLogger(a.log.With(logx.String("comp", "http"))),
		server.WithPing(a.store.Ping),
		server.WithHealth(a.Health),
		server.WithTick(a.poller.Tick),
		server.WithContextProvider(a.detect),
	}
	if cfg.HTTP.Pprof {
		sopts = append(sopts, server.WithProfiler(cfg.HTTP.PprofToken))
	}
	a.http = server.New(a.tasks, sopts...)
	return nil
}

func (a *App) Config() *config.Config  { return a.cfgm.Get() }
func (a *App) Logger() logx.Logger      { return a.log }
func (a *App) Tasks() *tasks.Service    { return a.tasks }
func (a *App) Location() *time.Location { return a.loc }

// Handler returns the HTTP API, or nil for apps from Open.
func (a *App) Handler() *server.Server { return a.http }

// Done is closed when the supervisor context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// CurrentContext asks the configured detector for the current context.
func (a *App) CurrentContext(ctx context.Context) string {
	if a.detect == nil {
		return ""
	}
	c, _ := a.detect.Current(ctx)
	return c
}

// Poll fires everything due once. Telegram answers are collected while it
// runs.
func (a *App) Poll(ctx context.Context) (poller.TickReport, error) {
	if a.poller == nil {
		return poller.TickReport{}, errors.New("app: poll needs the runtime (use New)")
	}
	if r, ok := a.notify.Driver().(notify.Runner); ok && a.sup == nil {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = r.Run(runCtx)
		}()
		defer func() { cancel(); <-done }()
	}
	return a.poller.Tick(ctx)
}

// Start launches the background loops. It returns once they are running.
func (a *App) Start(ctx context.Context) error {
	if a.poller == nil {
		return errors.New("app: start needs the runtime (use New)")
	}
	cfg := a.cfgm.Get()
	a.startedAt = time.Now()
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	a.cfgm.SetValidator(a.validateReload)

	if r, ok := a.notify.Driver().(notify.Runner); ok {
		a.sup.GoRestart("notify."+a.notify.Name(), r.Run,
			supervisor.WithRestartBackoff(time.Second, time.Minute),
			supervisor.WithStopOnCleanExit(true),
		)
	}
	if cfg.Scheduler.Enabled {
		a.startPoller()
	}
	if cfg.HTTP.Enabled {
		lc := mapListen(cfg)
		a.sup.Go("http", func(c context.Context) error { return a.http.Run(c, lc) })
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	a.sup.Go0("systemd.watchdog", a.watchdog)
	sdReady(a.log)

	a.log.Info("app started",
		logx.String("version", Version),
		logx.String("notifier", a.notify.Name()),
		logx.Bool("scheduler", cfg.Scheduler.Enabled),
		logx.Bool("http", cfg.HTTP.Enabled),
		logx.String("tz", a.loc.String()),
	)
	return nil
}

// startPoller runs the poll trigger in its own cancellable loop so it can be
// switched off and on by config reloads.
func (a *App) startPoller() {
	a.pollMu.Lock()
	defer a.pollMu.Unlock()
	if a.pollCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(a.sup.Context())
	a.pollCancel = cancel
	a.sup.Go("poller", func(context.Context) error { return a.poller.Run(ctx) })
}

func (a *App) stopPoller() {
	a.pollMu.Lock()
	defer a.pollMu.Unlock()
	if a.pollCancel != nil {
		a.pollCancel()
		a.pollCancel = nil
	}
}

func (a *App) pollerRunning() bool {
	a.pollMu.Lock()
	defer a.pollMu.Unlock()
	return a.pollCancel != nil
}

// Stop cancels every loop, waits for them within ctx and closes storage.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdStopping(a.log)

	err := a.sup.Stop(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		a.log.Warn("loops still running at shutdown deadline", logx.Any("loops", a.sup.Snapshot()))
		err = nil
	}
	if cerr := a.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close releases storage and log files. Use Stop for a started app.
func (a *App) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
		a.store = nil
	}
	if err == nil {
		a.log.Info("stopped")
	}
	a.closeLogs()
	return err
}

func (a *App) closeLogs() {
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

type healthInfo struct {
	Version   string                 `json:"version"`
	StartedAt time.Time              `json:"started_at"`
	Notifier  string                 `json:"notifier"`
	Timezone  string                 `json:"timezone"`
	Scheduler schedulerHealth        `json:"scheduler"`
	Loops     []supervisor.LoopStats `json:"loops,omitempty"`
}

type schedulerHealth struct {
	Running  bool   `json:"running"`
	Interval string `json:"interval"`
	Workers  int    `json:"workers"`
}

// Health describes the running daemon for /api/health.
func (a *App) Health() any {
	h := healthInfo{
		Version:   Version,
		StartedAt: a.startedAt,
		Timezone:  a.loc.String(),
	}
	if a.notify != nil {
		h.Notifier = a.notify.Name()
	}
	if a.poller != nil {
		pc := a.poller.Config()
		h.Scheduler = schedulerHealth{
			Running:  a.pollerRunning(),
			Interval: pc.Interval.String(),
			Workers:  pc.Workers,
		}
	}
	if a.sup != nil {
		h.Loops = a.sup.Snapshot()
	}
	return h
}
