package detect

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	logx "cuckoo/pkg/logx"
)

func TestNew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		cfg  Config
		want string
	}{
		{cfg: Config{}, want: ""},
		{cfg: Config{Detector: "none", Static: "home"}, want: ""},
		{cfg: Config{Detector: "static", Static: " home "}, want: "home"},
	}
	for _, tt := range tests {
		p, err := New(tt.cfg, logx.Nop())
		if err != nil {
			t.Fatalf("New(%+v): %v", tt.cfg, err)
		}
		got, err := p.Current(ctx)
		if err != nil || got != tt.want {
			t.Fatalf("Current() = %q, %v, want %q", got, err, tt.want)
		}
	}

	if _, err := New(Config{Detector: "wifi"}, logx.Nop()); err == nil {
		t.Fatalf("unknown detector accepted")
	}
	if _, err := New(Config{Detector: "command"}, logx.Nop()); err == nil {
		t.Fatalf("empty command accepted")
	}
}

func TestCommandDetector(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	ctx := context.Background()

	p, err := New(Config{Detector: "command", Command: "/bin/sh", Args: []string{"-c", "echo ' office '"}}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, _ := p.Current(ctx); got != "office" {
		t.Fatalf("Current() = %q, want office", got)
	}

	failing, err := New(Config{Detector: "command", Command: "/bin/sh", Args: []string{"-c", "exit 1"}}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := failing.Current(ctx)
	if err != nil || got != "" {
		t.Fatalf("failing detector = %q, %v, want empty and nil", got, err)
	}

	slow := &Command{Path: "/bin/sh", Args: []string{"-c", "exec sleep 5"}, Timeout: 50 * time.Millisecond}
	start := time.Now()
	if _, err := slow.Current(ctx); err == nil {
		t.Fatalf("slow detector should time out")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("timeout not enforced")
	}
}

type errProvider struct{}

func (errProvider) Current(context.Context) (string, error) { return "", errors.New("boom") }

func TestSwappable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewSwappable(Static("home"))
	if got, _ := s.Current(ctx); got != "home" {
		t.Fatalf("Current() = %q", got)
	}
	s.Set(Lenient(errProvider{}, logx.Nop()))
	if got, err := s.Current(ctx); got != "" || err != nil {
		t.Fatalf("Current() = %q, %v", got, err)
	}
	s.Set(nil)
	if got, err := s.Current(ctx); got != "" || err != nil {
		t.Fatalf("Current() = %q, %v", got, err)
	}
}
