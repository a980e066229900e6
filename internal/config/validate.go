package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"cuckoo/internal/detect"
	"cuckoo/internal/notify"
	logx "cuckoo/pkg/logx"
)

// Validate checks durations, counts, the timezone and driver names. All
// problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) time.Duration {
		d, err := ParseDurationField(path, raw)
		add(err)
		return d
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add(fmt.Errorf("logging.level: unknown level %q", lvl))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(errors.New("storage.path: required for sqlite"))
		}
	case "memory":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	if d := dur("scheduler.interval", cfg.Scheduler.Interval); d > 0 && d < time.Second {
		add(errors.New("scheduler.interval: must be at least 1s"))
	}
	if cfg.Scheduler.Workers < 0 || cfg.Scheduler.Workers > 64 {
		add(fmt.Errorf("scheduler.workers: %d out of range 0..64", cfg.Scheduler.Workers))
	}
	if _, err := LoadLocation(cfg.Scheduler.Timezone); err != nil {
		add(fmt.Errorf("scheduler.timezone: %w", err))
	}
	fire := dur("scheduler.fire_timeout", cfg.Scheduler.FireTimeout)

	n := cfg.Notifier
	if !notify.KnownDriver(n.Driver) {
		add(fmt.Errorf("notifier.driver: unknown driver %q", n.Driver))
	}
	if n.RatePerSec < 0 {
		add(errors.New("notifier.rate_per_sec: must be >= 0"))
	}
	if n.Burst < 0 {
		add(errors.New("notifier.burst: must be >= 0"))
	}
	timeout := dur("notifier.timeout", n.Timeout)
	reply := dur("notifier.telegram.reply_timeout", n.Telegram.ReplyTimeout)
	dur("notifier.telegram.poll_timeout", n.Telegram.PollTimeout)
	// A dispatch cut off by the fire deadline is retried on the next tick.
	if fire > 0 && timeout > 0 && fire <= timeout {
		add(errors.New("scheduler.fire_timeout: must be longer than notifier.timeout"))
	}
	switch strings.ToLower(strings.TrimSpace(n.Driver)) {
	case notify.DriverCommand:
		if strings.TrimSpace(n.Command.Path) == "" {
			add(errors.New("notifier.command.path: required for the command driver"))
		}
	case notify.DriverTelegram:
		if strings.TrimSpace(n.Telegram.Token) == "" {
			add(errors.New("notifier.telegram.token: required for the telegram driver"))
		}
		if n.Telegram.ChatID == 0 {
			add(errors.New("notifier.telegram.chat_id: required for the telegram driver"))
		}
		if timeout > 0 && reply >= timeout {
			add(errors.New("notifier.telegram.reply_timeout: must be shorter than notifier.timeout"))
		}
		if fire > 0 && reply >= fire {
			add(errors.New("notifier.telegram.reply_timeout: must be shorter than scheduler.fire_timeout"))
		}
	case notify.DriverServerChan:
		if strings.TrimSpace(n.ServerChan.SendKey) == "" {
			add(errors.New("notifier.serverchan.send_key: required for the serverchan driver"))
		}
	}

	if !detect.Known(cfg.Context.Detector) {
		add(fmt.Errorf("context.detector: unknown detector %q", cfg.Context.Detector))
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Context.Detector), detect.KindCommand) && strings.TrimSpace(cfg.Context.Command) == "" {
		add(errors.New("context.command: required for the command detector"))
	}
	dur("context.timeout", cfg.Context.Timeout)

	if cfg.HTTP.Enabled && strings.TrimSpace(cfg.HTTP.Addr) == "" {
		add(errors.New("http.addr: required when http is enabled"))
	}
	if cfg.HTTP.Pprof && strings.TrimSpace(cfg.HTTP.PprofToken) == "" && !loopback(cfg.HTTP.Addr) {
		add(errors.New("http.pprof_token: required when pprof is served on a non-loopback address"))
	}
	dur("http.read_timeout", cfg.HTTP.ReadTimeout)
	dur("http.write_timeout", cfg.HTTP.WriteTimeout)

	return errors.Join(errs...)
}

// LoadLocation resolves a timezone name; empty means time.Local.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

func loopback(addr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
