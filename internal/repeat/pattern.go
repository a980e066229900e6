// Package repeat implements recurrence patterns for reminders.
//
// A Pattern is an immutable value parsed once from its textual form
// ("daily", "end_of_month", "every_3_hours", ...). Parsing is the only
// validation boundary: a Pattern value that exists is always steppable.
package repeat

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// Kind is the closed set of recurrence kinds.
type Kind int

const (
	KindDaily Kind = iota + 1
	KindHourly
	KindMinutely
	KindWeekly
	KindMonthly
	KindYearly
	KindEndOfMonth
	KindEveryDays
	KindEveryHours
	KindEveryMinutes
)

var literalKinds = map[string]Kind{
	"daily":        KindDaily,
	"hourly":       KindHourly,
	"minutely":     KindMinutely,
	"weekly":       KindWeekly,
	"monthly":      KindMonthly,
	"yearly":       KindYearly,
	"end_of_month": KindEndOfMonth,
}

var everyUnits = map[string]Kind{
	"days":    KindEveryDays,
	"hours":   KindEveryHours,
	"minutes": KindEveryMinutes,
}

var reEvery = regexp.MustCompile(`^every_([0-9]+)_(days|hours|minutes)$`)

// InvalidPatternError reports a string that is not a recurrence pattern.
type InvalidPatternError struct {
	Value  string
	Reason string
}

func (e *InvalidPatternError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid repeat pattern %q: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid repeat pattern %q", e.Value)
}

// Pattern is a validated recurrence rule. The zero value is not valid;
// obtain one from Parse.
type Pattern struct {
	kind Kind
	n    int
}

// Parse validates s and returns the pattern it names.
func Parse(s string) (Pattern, error) {
	if k, ok := literalKinds[s]; ok {
		return Pattern{kind: k}, nil
	}
	m := reEvery.FindStringSubmatch(s)
	if m == nil {
		return Pattern{}, &InvalidPatternError{Value: s}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Pattern{}, &InvalidPatternError{Value: s, Reason: "count out of range"}
	}
	if n < 1 {
		return Pattern{}, &InvalidPatternError{Value: s, Reason: "count must be >= 1"}
	}
	kind := everyUnits[m[2]]
	if int64(n) > math.MaxInt64/int64(unitOf(kind)) {
		return Pattern{}, &InvalidPatternError{Value: s, Reason: "count out of range"}
	}
	return Pattern{kind: kind, n: n}, nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) Pattern {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate reports whether s is an accepted pattern string.
func Validate(s string) error {
	_, err := Parse(s)
	return err
}

func (p Pattern) Kind() Kind { return p.kind }

// Count is N for every_N_* kinds and 0 otherwise.
func (p Pattern) Count() int { return p.n }

func (p Pattern) IsZero() bool { return p.kind == 0 }

func (p Pattern) String() string {
	switch p.kind {
	case KindEveryDays:
		return fmt.Sprintf("every_%d_days", p.n)
	case KindEveryHours:
		return fmt.Sprintf("every_%d_hours", p.n)
	case KindEveryMinutes:
		return fmt.Sprintf("every_%d_minutes", p.n)
	}
	for s, k := range literalKinds {
		if k == p.kind {
			return s
		}
	}
	return ""
}

func (p Pattern) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return nil, &InvalidPatternError{Value: "", Reason: "zero pattern"}
	}
	return []byte(p.String()), nil
}

func (p *Pattern) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// fixedStep returns the step for kinds with a constant duration.
func (p Pattern) fixedStep() (time.Duration, bool) {
	switch p.kind {
	case KindDaily:
		return 24 * time.Hour, true
	case KindHourly:
		return time.Hour, true
	case KindMinutely:
		return time.Minute, true
	case KindWeekly:
		return 7 * 24 * time.Hour, true
	case KindEveryDays, KindEveryHours, KindEveryMinutes:
		return time.Duration(p.n) * unitOf(p.kind), true
	}
	return 0, false
}

func unitOf(k Kind) time.Duration {
	switch k {
	case KindEveryDays:
		return 24 * time.Hour
	case KindEveryHours:
		return time.Hour
	case KindEveryMinutes:
		return time.Minute
	}
	return 0
}

// Step applies one increment of the pattern to t.
// Calendar kinds work in t's location.
func (p Pattern) Step(t time.Time) time.Time {
	switch p.kind {
	case KindDaily, KindHourly, KindMinutely, KindWeekly,
		KindEveryDays, KindEveryHours, KindEveryMinutes:
		d, _ := p.fixedStep()
		return t.Add(d)
	case KindMonthly:
		return addMonths(t, 1)
	case KindYearly:
		return addMonths(t, 12)
	case KindEndOfMonth:
		// Two months ahead, then day 0 of that month: last day of the month after t.
		two := addMonths(t, 2)
		hh, mm, ss := two.Clock()
		return time.Date(two.Year(), two.Month(), 0, hh, mm, ss, two.Nanosecond(), two.Location())
	}
	panic(fmt.Sprintf("repeat: step on invalid pattern kind %d", p.kind))
}

// Next returns the first point current+k*step (k >= 1) that is not before now.
func (p Pattern) Next(current, now time.Time) time.Time {
	if d, ok := p.fixedStep(); ok {
		k := int64(1)
		if gap := now.Sub(current); gap > d {
			k = int64(gap / d)
			if gap%d != 0 {
				k++
			}
		}
		return current.Add(time.Duration(k) * d)
	}
	next := p.Step(current)
	for next.Before(now) {
		next = p.Step(next)
	}
	return next
}

// NextUnix is Next over unix seconds, with calendar math done in loc.
func (p Pattern) NextUnix(current, now int64, loc *time.Location) int64 {
	if loc == nil {
		loc = time.Local
	}
	return p.Next(time.Unix(current, 0).In(loc), time.Unix(now, 0).In(loc)).Unix()
}

// addMonths adds n calendar months, clamping the day to the target month's length.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}
