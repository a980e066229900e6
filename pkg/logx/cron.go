package logx

import "fmt"

// CronLogger adapts a Logger to robfig/cron's Logger interface
// (Info(msg, keysAndValues...) / Error(err, msg, keysAndValues...)).
func CronLogger(l Logger) cronLogger { return cronLogger{log: l} }

type cronLogger struct{ log Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	// cron logs every wake-up at info; that is debug noise for us.
	c.log.Debug(msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append(kvFields(keysAndValues), Err(err))...)
}

func kvFields(kv []interface{}) []Field {
	out := make([]Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, Any(k, kv[i+1]))
	}
	return out
}
