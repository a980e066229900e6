package app

import (
	"context"
	"strings"

	"cuckoo/internal/config"
	"cuckoo/internal/detect"
	logx "cuckoo/pkg/logx"
)

// validateReload runs before a reloaded file is committed. Building the
// detector here rejects settings that would fail to apply.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	_, err := detect.New(mapDetect(cfg), logx.Nop())
	return err
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

// applyConfig moves the running components from prev to next. Settings that
// cannot change live are reported and left alone.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.Summarize(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(prev, next); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("settings", strings.Join(restart, ",")))
	}

	if a.logs != nil {
		a.logs.Apply(mapLogging(next))
	}

	if a.notify != nil {
		nc := mapNotify(next)
		a.notify.Apply(nc.RatePerSec, nc.Burst, nc.Timeout)
	}

	if a.detect != nil {
		p, err := detect.New(mapDetect(next), a.log)
		if err != nil {
			a.log.Warn("invalid context detector; keeping previous", logx.Err(err))
		} else {
			a.detect.Set(p)
		}
	}

	if a.poller != nil {
		if err := a.poller.Apply(mapPoller(next), nil); err != nil {
			a.log.Warn("poll trigger not updated", logx.Err(err))
		}
		switch running := a.pollerRunning(); {
		case running && !next.Scheduler.Enabled:
			a.log.Info("scheduler disabled via config")
			a.stopPoller()
		case !running && next.Scheduler.Enabled && a.sup != nil:
			a.log.Info("scheduler enabled via config")
			a.startPoller()
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
