package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Following previews upcoming reminders with the same gating the engine
// applies, plus restricted hours. It never writes.
type Following struct {
	store Store
	loc   *time.Location
}

func NewFollowing(store Store, opts ...Option) *Following {
	o := buildOptions(opts)
	return &Following{store: store, loc: o.loc}
}

// Build filters entries, keeping their order. The context filter only applies
// when currentContext is non-empty.
func (f *Following) Build(ctx context.Context, entries []QueueEntry, currentContext string) ([]Upcoming, error) {
	out := make([]Upcoming, 0, len(entries))
	for _, en := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rem, err := f.store.GetReminder(ctx, en.RemindID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get remind %d: %w", en.RemindID, err)
		}
		if rem.Closed {
			continue
		}
		taskID := rem.TaskID
		if taskID == 0 {
			taskID = en.TaskID
		}
		task, err := f.store.GetTask(ctx, taskID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get task %d: %w", taskID, err)
		}
		if !task.Active() {
			continue
		}
		if currentContext != "" && rem.Context != "" && rem.Context != currentContext {
			continue
		}
		if !rem.AllowsHour(time.Unix(en.FireAt, 0).In(f.loc).Hour()) {
			continue
		}
		out = append(out, Upcoming{Task: *task, Reminder: *rem, FireAt: en.FireAt})
	}
	return out, nil
}
