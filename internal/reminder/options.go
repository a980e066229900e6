package reminder

import (
	"time"

	"cuckoo/internal/eventbus"
	logx "cuckoo/pkg/logx"
)

type options struct {
	log    logx.Logger
	bus    eventbus.Bus
	loc    *time.Location
	now    func() time.Time
	snooze SnoozeParser
}

// Option configures an Engine or a Following builder.
type Option func(*options)

func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = log } }

// WithBus publishes firing outcomes as "reminder.*" events.
func WithBus(b eventbus.Bus) Option { return func(o *options) { o.bus = b } }

// WithLocation sets the zone used for calendar math and hour-of-day checks.
func WithLocation(loc *time.Location) Option { return func(o *options) { o.loc = loc } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func WithSnoozeParser(p SnoozeParser) Option { return func(o *options) { o.snooze = p } }

func buildOptions(opts []Option) options {
	o := options{}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}
	if o.bus == nil {
		o.bus = eventbus.Discard
	}
	if o.loc == nil {
		o.loc = time.Local
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.snooze == nil {
		o.snooze = DefaultSnoozeParser
	}
	return o
}
