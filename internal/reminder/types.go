// Package reminder decides what happens when a scheduled reminder comes due.
//
// The Engine consumes due delay-queue entries, gates them on task state and
// the caller's current context, hands deliverable ones to a Dispatcher and
// turns the user's response into a snooze, the next occurrence, or closure.
// Following is the read-only preview of the same gating rules.
//
// Persistence, the delay queue, notification transport and context detection
// are reached only through the interfaces in ports.go.
package reminder

import (
	"fmt"

	"cuckoo/internal/repeat"
)

// Task states. Only TaskActive is deliverable; everything else is paused.
const (
	TaskActive = "active"
	TaskPaused = "paused"
	TaskDone   = "done"
)

type Task struct {
	ID       int64  `json:"id"`
	Brief    string `json:"brief"`
	Detail   string `json:"detail,omitempty"`
	Device   string `json:"device,omitempty"`
	Icon     string `json:"icon,omitempty"`
	IconFile string `json:"icon_file,omitempty"`
	State    string `json:"state"`
	RemindID int64  `json:"remind_id,omitempty"`

	CreatedAt int64 `json:"create_at"`
	UpdatedAt int64 `json:"update_at"`
}

func (t *Task) Active() bool { return t != nil && t.State == TaskActive }

// Reminder is the schedule attached to a task. A nil Repeat means one-shot.
type Reminder struct {
	ID     int64  `json:"id"`
	TaskID int64  `json:"task_id"`
	// Context restricts delivery to one device/location tag; empty means anywhere.
	Context string `json:"context,omitempty"`
	// RestrictedHours is nil or a 24-entry mask of hours (local time) a
	// reminder may be listed as upcoming.
	RestrictedHours []bool          `json:"restricted_hours,omitempty"`
	NextFireAt      int64           `json:"timestamp"`
	Repeat          *repeat.Pattern `json:"repeat_type,omitempty"`
	Closed          bool            `json:"closed"`

	CreatedAt int64 `json:"create_at"`
	UpdatedAt int64 `json:"update_at"`
}

func (r *Reminder) Recurring() bool { return r.Repeat != nil && !r.Repeat.IsZero() }

// AllowsHour reports whether hour h (0-23) is eligible under RestrictedHours.
func (r *Reminder) AllowsHour(h int) bool {
	if len(r.RestrictedHours) != 24 || h < 0 || h > 23 {
		return true
	}
	return r.RestrictedHours[h]
}

// ValidateRestrictedHours accepts nil or exactly 24 entries with at least one hour open.
func ValidateRestrictedHours(h []bool) error {
	if h == nil {
		return nil
	}
	if len(h) != 24 {
		return fmt.Errorf("restricted_hours must have 24 entries, got %d", len(h))
	}
	for _, ok := range h {
		if ok {
			return nil
		}
	}
	return fmt.Errorf("restricted_hours excludes every hour")
}

// QueueEntry is one pending fire in the delay queue. The queue holds at most
// one entry per RemindID.
type QueueEntry struct {
	TaskID   int64 `json:"task_id"`
	RemindID int64 `json:"remind_id"`
	FireAt   int64 `json:"fire_at"`
}

// RemindLog is the audit row written for every delivery attempt.
type RemindLog struct {
	ID        int64 `json:"id"`
	TaskID    int64 `json:"task_id"`
	PlannedAt int64 `json:"plan_alarm_at"`
	ActualAt  int64 `json:"real_alarm_at"`
	CreatedAt int64 `json:"create_at"`
}

// Payload is what a Dispatcher shows the user.
type Payload struct {
	TaskID  int64  `json:"taskId"`
	Brief   string `json:"brief"`
	Detail  string `json:"detail"`
	Device  string `json:"device"`
	Icon    string `json:"icon"`
	AlarmAt int64  `json:"alarmAt"`
}

// PayloadFor builds the notification payload for task planned at alarmAt.
func PayloadFor(t *Task, alarmAt int64) Payload {
	return Payload{
		TaskID:  t.ID,
		Brief:   fmt.Sprintf("#%d %s", t.ID, t.Brief),
		Detail:  t.Detail,
		Device:  t.Device,
		Icon:    t.Icon,
		AlarmAt: alarmAt,
	}
}

// Response is what the user did with a notification.
type Response struct {
	ActivationValue string `json:"activationValue"`
}

// Upcoming is one row of the following list.
type Upcoming struct {
	Task     Task     `json:"task"`
	Reminder Reminder `json:"remind"`
	FireAt   int64    `json:"fire_at"`
}
