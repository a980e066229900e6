package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"cuckoo/internal/reminder"
	logx "cuckoo/pkg/logx"
)

const maxStderr = 512

type commandDriver struct {
	cfg CommandConfig
	log logx.Logger
}

// NewCommand returns a driver that runs an external program per
// notification. The payload is written to its stdin as JSON; when
// ExpectResponse is set, stdout is decoded as the response body.
func NewCommand(cfg CommandConfig, log logx.Logger) (Driver, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("notify: command path is empty")
	}
	return &commandDriver{cfg: cfg, log: log.With(logx.String("comp", "notify.command"))}, nil
}

func (d *commandDriver) Name() string { return DriverCommand }

func (d *commandDriver) Notify(ctx context.Context, rem *reminder.Reminder, p reminder.Payload) (reminder.Response, error) {
	in, err := json.Marshal(p)
	if err != nil {
		return reminder.Response{}, fmt.Errorf("encode payload: %w", err)
	}

	cmd := exec.CommandContext(ctx, d.cfg.Path, expandArgs(d.cfg.Args, p)...)
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr]
		}
		if msg != "" {
			return reminder.Response{}, fmt.Errorf("notify command %s: %w: %s", d.cfg.Path, err, msg)
		}
		return reminder.Response{}, fmt.Errorf("notify command %s: %w", d.cfg.Path, err)
	}
	if !d.cfg.ExpectResponse {
		return reminder.Response{}, nil
	}
	resp, err := reminder.DecodeResponse(stdout.Bytes())
	if err != nil {
		return reminder.Response{}, err
	}
	if resp.ActivationValue != "" {
		d.log.Debug("command answered", logx.Int64("task_id", p.TaskID), logx.String("activation", resp.ActivationValue))
	}
	return resp, nil
}

func expandArgs(args []string, p reminder.Payload) []string {
	if len(args) == 0 {
		return nil
	}
	r := strings.NewReplacer(
		"{brief}", p.Brief,
		"{detail}", p.Detail,
		"{device}", p.Device,
		"{icon}", p.Icon,
		"{task_id}", strconv.FormatInt(p.TaskID, 10),
		"{alarm_at}", strconv.FormatInt(p.AlarmAt, 10),
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}
