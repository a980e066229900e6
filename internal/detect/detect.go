// Package detect reports the user's current context (device or place), used
// to gate context-bound reminders.
package detect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"cuckoo/internal/reminder"
	logx "cuckoo/pkg/logx"
)

const (
	KindNone    = "none"
	KindStatic  = "static"
	KindCommand = "command"
)

type Config struct {
	Detector string
	Static   string
	Command  string
	Args     []string
	Timeout  time.Duration
}

// Known reports whether kind is an accepted detector name.
func Known(kind string) bool {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindNone, KindStatic, KindCommand:
		return true
	}
	return false
}

// New builds the configured provider. A failing provider is wrapped so that
// errors are logged and reported as the empty context.
func New(cfg Config, log logx.Logger) (reminder.ContextProvider, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "detect"))
	switch strings.ToLower(strings.TrimSpace(cfg.Detector)) {
	case "", KindNone:
		return Static(""), nil
	case KindStatic:
		return Static(strings.TrimSpace(cfg.Static)), nil
	case KindCommand:
		if strings.TrimSpace(cfg.Command) == "" {
			return nil, errors.New("detect: command is empty")
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		return Lenient(&Command{Path: cfg.Command, Args: cfg.Args, Timeout: timeout}, log), nil
	default:
		return nil, fmt.Errorf("detect: unknown detector %q", cfg.Detector)
	}
}

// Static always reports the same context.
type Static string

func (s Static) Current(context.Context) (string, error) { return string(s), nil }

// Command runs a program and uses its trimmed stdout as the context name.
type Command struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

func (c *Command) Current(ctx context.Context) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdout = &stdout
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("detect command %s: %w", c.Path, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

type lenient struct {
	next reminder.ContextProvider
	log  logx.Logger
}

// Lenient turns provider errors into the empty context.
func Lenient(p reminder.ContextProvider, log logx.Logger) reminder.ContextProvider {
	return &lenient{next: p, log: log}
}

func (l *lenient) Current(ctx context.Context) (string, error) {
	name, err := l.next.Current(ctx)
	if err != nil {
		l.log.Warn("context detection failed", logx.Err(err))
		return "", nil
	}
	return name, nil
}

// Swappable lets the detector be replaced on config reload while the poller
// holds a reference.
type Swappable struct {
	cur atomic.Pointer[reminder.ContextProvider]
}

func NewSwappable(p reminder.ContextProvider) *Swappable {
	s := &Swappable{}
	s.Set(p)
	return s
}

func (s *Swappable) Set(p reminder.ContextProvider) {
	if p == nil {
		p = Static("")
	}
	s.cur.Store(&p)
}

func (s *Swappable) Current(ctx context.Context) (string, error) {
	p := s.cur.Load()
	if p == nil {
		return "", nil
	}
	return (*p).Current(ctx)
}
