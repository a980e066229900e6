package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a non-negative Go duration; empty is zero. path
// names the field in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Durations is a valid config's parsed durations. Invalid fields fall
// back to defaults, so call it after Validate.
type Durations struct {
	StorageBusy   time.Duration
	PollInterval  time.Duration
	FireTimeout   time.Duration
	NotifyTimeout time.Duration
	ReplyTimeout  time.Duration
	PollTimeout   time.Duration
	DetectTimeout time.Duration
	HTTPRead      time.Duration
	HTTPWrite     time.Duration
}

func (c *Config) Durations() Durations {
	get := func(raw string, def time.Duration) time.Duration {
		d, err := ParseDurationOrDefault("", raw, def)
		if err != nil {
			return def
		}
		return d
	}
	return Durations{
		StorageBusy:   get(c.Storage.BusyTimeout, 5*time.Second),
		PollInterval:  get(c.Scheduler.Interval, 30*time.Second),
		FireTimeout:   get(c.Scheduler.FireTimeout, 0),
		NotifyTimeout: get(c.Notifier.Timeout, 0),
		ReplyTimeout:  get(c.Notifier.Telegram.ReplyTimeout, 60*time.Second),
		PollTimeout:   get(c.Notifier.Telegram.PollTimeout, 10*time.Second),
		DetectTimeout: get(c.Context.Timeout, 5*time.Second),
		HTTPRead:      get(c.HTTP.ReadTimeout, 10*time.Second),
		HTTPWrite:     get(c.HTTP.WriteTimeout, 30*time.Second),
	}
}
