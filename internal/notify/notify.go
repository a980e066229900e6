// Package notify delivers reminder payloads to the user and collects their
// answer. Drivers are selected by name and wrapped with a rate limit.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cuckoo/internal/reminder"
	logx "cuckoo/pkg/logx"
)

const (
	DriverLog        = "log"
	DriverCommand    = "command"
	DriverTelegram   = "telegram"
	DriverServerChan = "serverchan"
)

// Drivers lists the accepted driver names.
var Drivers = []string{DriverLog, DriverCommand, DriverTelegram, DriverServerChan}

type Config struct {
	Driver     string
	RatePerSec float64
	Burst      int
	Timeout    time.Duration

	Command    CommandConfig
	Telegram   TelegramConfig
	ServerChan ServerChanConfig
}

type CommandConfig struct {
	Path string
	// Args may reference {brief}, {detail}, {device}, {icon}, {task_id} and
	// {alarm_at}; they are replaced per notification.
	Args           []string
	ExpectResponse bool
}

type TelegramConfig struct {
	Token        string
	ChatID       int64
	ReplyTimeout time.Duration
	PollTimeout  time.Duration
}

type ServerChanConfig struct {
	SendKey string
	BaseURL string // default: https://sctapi.ftqq.com
}

// Driver is a named reminder.Dispatcher.
type Driver interface {
	reminder.Dispatcher
	Name() string
}

// Runner is implemented by drivers that need a background loop (telegram
// long polling). Run blocks until ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}

// KnownDriver reports whether name is an accepted driver ("" means log).
func KnownDriver(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return true
	}
	for _, d := range Drivers {
		if d == name {
			return true
		}
	}
	return false
}

// New builds the configured driver.
func New(cfg Config, log logx.Logger) (Driver, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverLog:
		return NewLog(log), nil
	case DriverCommand:
		return NewCommand(cfg.Command, log)
	case DriverTelegram:
		return NewTelegram(cfg.Telegram, log)
	case DriverServerChan:
		return NewServerChan(cfg.ServerChan, log)
	default:
		return nil, fmt.Errorf("notify: unknown driver %q", cfg.Driver)
	}
}

// text renders a payload as a plain multi-line message.
func text(p reminder.Payload, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	b.WriteString(p.Brief)
	if d := strings.TrimSpace(p.Detail); d != "" {
		b.WriteString("\n")
		b.WriteString(d)
	}
	if p.AlarmAt > 0 {
		b.WriteString("\n")
		b.WriteString(time.Unix(p.AlarmAt, 0).In(loc).Format("2006-01-02 15:04"))
	}
	return b.String()
}
