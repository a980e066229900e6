package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cuckoo/internal/reminder"
	"cuckoo/internal/services/tasks"
)

func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cuckoo.yaml")
	body := fmt.Sprintf(`storage:
  driver: sqlite
  path: %s
scheduler:
  timezone: UTC
http:
  enabled: false
context:
  detector: static
  static: office
`, filepath.Join(dir, "cuckoo.db"))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfg}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, cfg string, args ...string) string {
	t.Helper()
	out, err := run(t, cfg, args...)
	if err != nil {
		t.Fatalf("cuckoo %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func addTask(t *testing.T, cfg string, args ...string) tasks.View {
	t.Helper()
	out := mustRun(t, cfg, append([]string{"--json", "task", "add"}, args...)...)
	var v tasks.View
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	return v
}

func TestTaskCommands(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	v := addTask(t, cfg, "water", "the", "plants", "--at", "2030-01-02 08:00", "--repeat", "daily", "--hours", "7-21")
	if v.Brief != "water the plants" || v.Remind == nil || v.Remind.Repeat.String() != "daily" {
		t.Fatalf("added %+v", v)
	}
	if len(v.Remind.RestrictedHours) != 24 || v.Remind.RestrictedHours[6] || !v.Remind.RestrictedHours[7] {
		t.Fatalf("hours = %v", v.Remind.RestrictedHours)
	}

	out := mustRun(t, cfg, "task", "show", fmt.Sprint(v.ID))
	if !strings.Contains(out, "water the plants") || !strings.Contains(out, "2030-01-02 08:00") {
		t.Fatalf("show output:\n%s", out)
	}

	out = mustRun(t, cfg, "task", "list", "--brief", "plants")
	if !strings.Contains(out, "water the plants") {
		t.Fatalf("list output:\n%s", out)
	}

	out = mustRun(t, cfg, "--json", "task", "pause", fmt.Sprint(v.ID))
	if !strings.Contains(out, `"state": "paused"`) {
		t.Fatalf("pause output:\n%s", out)
	}
	mustRun(t, cfg, "task", "resume", fmt.Sprint(v.ID))

	out = mustRun(t, cfg, "task", "edit", fmt.Sprint(v.ID), "--detail", "balcony")
	if !strings.Contains(out, "balcony") {
		t.Fatalf("edit output:\n%s", out)
	}

	out = mustRun(t, cfg, "task", "dup", fmt.Sprint(v.ID))
	if !strings.Contains(out, fmt.Sprintf("复制自%d", v.ID)) {
		t.Fatalf("dup output:\n%s", out)
	}

	out = mustRun(t, cfg, "task", "rm", fmt.Sprint(v.ID))
	if !strings.Contains(out, "deleted task") {
		t.Fatalf("rm output:\n%s", out)
	}
	if _, err := run(t, cfg, "task", "show", fmt.Sprint(v.ID)); err == nil {
		t.Fatal("deleted task still shown")
	}
}

func TestTaskAddRejectsBadInput(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	for _, args := range [][]string{
		{"task", "add", "x", "--repeat", "daily"},
		{"task", "add", "x", "--at", "soon"},
		{"task", "add", "x", "--at", "2030-01-01 09:00", "--repeat", "fortnightly"},
		{"task", "add", "x", "--at", "2030-01-01 09:00", "--hours", "25"},
		{"task", "show", "abc"},
	} {
		if _, err := run(t, cfg, args...); err == nil {
			t.Fatalf("cuckoo %v succeeded", args)
		}
	}
}

func TestRemindCommands(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	v := addTask(t, cfg, "pay rent")
	if v.Remind != nil {
		t.Fatalf("task without --at has a reminder: %+v", v.Remind)
	}

	out := mustRun(t, cfg, "--json", "remind", "set", fmt.Sprint(v.ID), "--at", "2030-03-01 09:00", "--repeat", "monthly")
	var r reminder.Reminder
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if r.TaskID != v.ID || !r.Recurring() {
		t.Fatalf("remind set = %+v", r)
	}

	out = mustRun(t, cfg, "remind", "edit", fmt.Sprint(r.ID), "--context", "home")
	if !strings.Contains(out, "context home") || !strings.Contains(out, "repeat monthly") {
		t.Fatalf("remind edit output:\n%s", out)
	}

	if _, err := run(t, cfg, "remind", "set", fmt.Sprint(v.ID)); err == nil {
		t.Fatal("remind set without --at succeeded")
	}
}

func TestFollowing(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	addTask(t, cfg, "standup", "--at", "2030-01-01 09:30", "--context", "office")
	addTask(t, cfg, "laundry", "--at", "2030-01-01 08:00", "--context", "home")
	addTask(t, cfg, "stretch", "--at", "2030-01-01 10:00")

	// The static detector reports "office".
	out := mustRun(t, cfg, "following")
	if !strings.Contains(out, "standup") || strings.Contains(out, "laundry") || !strings.Contains(out, "stretch") {
		t.Fatalf("following output:\n%s", out)
	}
	if strings.Index(out, "standup") > strings.Index(out, "stretch") {
		t.Fatalf("following not ordered by fire time:\n%s", out)
	}

	out = mustRun(t, cfg, "following", "--context", "home")
	if !strings.Contains(out, "laundry") || strings.Contains(out, "standup") {
		t.Fatalf("following --context home:\n%s", out)
	}

	out = mustRun(t, cfg, "following", "--alfred")
	var doc tasks.AlfredOutput
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("alfred output %q: %v", out, err)
	}
	if len(doc.Items) == 0 {
		t.Fatalf("alfred output has no items: %s", out)
	}
}

func TestPollCommand(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	addTask(t, cfg, "overdue", "--at", "2001-01-01 00:00")
	out := mustRun(t, cfg, "poll")
	if !strings.Contains(out, "due 1, fired 1") {
		t.Fatalf("poll output:\n%s", out)
	}
	out = mustRun(t, cfg, "--json", "poll")
	if !strings.Contains(out, `"due": 0`) {
		t.Fatalf("second poll output:\n%s", out)
	}
}
