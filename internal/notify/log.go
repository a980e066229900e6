package notify

import (
	"context"

	"cuckoo/internal/reminder"
	logx "cuckoo/pkg/logx"
)

type logDriver struct {
	log logx.Logger
}

// NewLog returns a driver that only logs the payload. The user never
// answers, so recurring reminders continue and one-shots close.
func NewLog(log logx.Logger) Driver {
	return &logDriver{log: log.With(logx.String("comp", "notify.log"))}
}

func (d *logDriver) Name() string { return DriverLog }

func (d *logDriver) Notify(_ context.Context, rem *reminder.Reminder, p reminder.Payload) (reminder.Response, error) {
	fields := []logx.Field{
		logx.Int64("task_id", p.TaskID),
		logx.String("brief", p.Brief),
		logx.Unix("alarm_at", p.AlarmAt),
	}
	if rem != nil {
		fields = append(fields, logx.Int64("remind_id", rem.ID))
	}
	if p.Device != "" {
		fields = append(fields, logx.String("device", p.Device))
	}
	d.log.Info("reminder", fields...)
	return reminder.Response{}, nil
}
