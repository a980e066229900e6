package config

import (
	"reflect"
	"strings"

	logx "cuckoo/pkg/logx"
)

// Summarize lists the sections that differ between oldCfg and newCfg along
// with safe log fields. Secrets (telegram token, serverchan key) are only
// reported as set or unset.
func Summarize(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.interval", newCfg.Scheduler.Interval),
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		n := newCfg.Notifier
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.String("notifier.driver", n.Driver),
			logx.Any("notifier.rate_per_sec", n.RatePerSec),
			logx.String("notifier.timeout", n.Timeout),
			logx.Bool("notifier.telegram.token_set", strings.TrimSpace(n.Telegram.Token) != ""),
			logx.Bool("notifier.serverchan.key_set", strings.TrimSpace(n.ServerChan.SendKey) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Context, newCfg.Context) {
		changed = append(changed, "context")
		attrs = append(attrs, logx.String("context.detector", newCfg.Context.Detector))
	}
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
			logx.Bool("http.pprof_token_set", strings.TrimSpace(newCfg.HTTP.PprofToken) != ""),
		)
	}
	return changed, attrs
}

// RestartRequired lists changed settings that only take effect after a
// restart: storage, the HTTP listener, the timezone and the notifier backend.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if oldCfg.HTTP != newCfg.HTTP {
		out = append(out, "http")
	}
	if oldCfg.Scheduler.Timezone != newCfg.Scheduler.Timezone {
		out = append(out, "scheduler.timezone")
	}
	o, n := oldCfg.Notifier, newCfg.Notifier
	if o.Driver != n.Driver ||
		!reflect.DeepEqual(o.Command, n.Command) ||
		o.Telegram != n.Telegram ||
		o.ServerChan != n.ServerChan {
		out = append(out, "notifier.driver")
	}
	return out
}
