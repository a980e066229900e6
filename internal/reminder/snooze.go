package reminder

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type SnoozeKind int

const (
	SnoozeKindNone SnoozeKind = iota
	SnoozeKindMinutes
	SnoozeKindNextMorning
	SnoozeKindHours
)

func (k SnoozeKind) String() string {
	switch k {
	case SnoozeKindMinutes:
		return "minutes"
	case SnoozeKindNextMorning:
		return "next_morning"
	case SnoozeKindHours:
		return "hours"
	default:
		return "none"
	}
}

// SnoozeDirective is the parsed form of a notification's activation value.
type SnoozeDirective struct {
	Kind SnoozeKind `json:"kind"`
	N    int        `json:"n,omitempty"`
}

func SnoozeMinutes(n int) SnoozeDirective { return SnoozeDirective{Kind: SnoozeKindMinutes, N: n} }
func SnoozeHours(n int) SnoozeDirective   { return SnoozeDirective{Kind: SnoozeKindHours, N: n} }
func SnoozeNextMorning() SnoozeDirective  { return SnoozeDirective{Kind: SnoozeKindNextMorning} }
func SnoozeNone() SnoozeDirective         { return SnoozeDirective{} }

func (d SnoozeDirective) IsNone() bool { return d.Kind == SnoozeKindNone }

// MorningHour is the clock hour SnoozeNextMorning aims for.
const MorningHour = 8

// At returns when a snoozed reminder should fire again, given now in the
// user's location.
//
// NextMorning starts from today's 08:00 and adds 12h until it is not before
// now, so a snooze at 10:00 lands on 20:00 the same day.
func (d SnoozeDirective) At(now time.Time) time.Time {
	switch d.Kind {
	case SnoozeKindMinutes:
		return now.Add(time.Duration(d.N) * time.Minute)
	case SnoozeKindHours:
		return now.Add(time.Duration(d.N) * time.Hour)
	case SnoozeKindNextMorning:
		y, m, day := now.Date()
		t := time.Date(y, m, day, MorningHour, 0, 0, 0, now.Location())
		for t.Before(now) {
			t = t.Add(12 * time.Hour)
		}
		return t
	}
	return now
}

// SnoozeParser turns a free-form activation value into a directive.
type SnoozeParser interface {
	Parse(activation string) SnoozeDirective
}

type SnoozeParserFunc func(string) SnoozeDirective

func (f SnoozeParserFunc) Parse(s string) SnoozeDirective { return f(s) }

// Activation values understood by DefaultSnoozeParser. Notifiers offering
// buttons use these labels.
const (
	ActivationSnooze5Min    = "5分钟后再提醒"
	ActivationSnooze1Hour   = "1小时后再提醒"
	ActivationSnoozeMorning = "8点时再提醒"
	ActivationDismiss       = "不再提醒"
)

var (
	reSnoozeMinutes = regexp.MustCompile(`([0-9]+)分钟后再提醒`)
	reSnoozeHours   = regexp.MustCompile(`([0-9]+)小时后再提醒`)
)

// maxSnoozeCount bounds N so now+N*unit cannot overflow.
const maxSnoozeCount = 1_000_000

// DefaultSnoozeParser matches, in priority order, "N分钟后再提醒",
// "8点时再提醒" and "N小时后再提醒" anywhere in the activation value.
var DefaultSnoozeParser SnoozeParser = SnoozeParserFunc(parseSnooze)

func parseSnooze(s string) SnoozeDirective {
	s = strings.TrimSpace(s)
	if s == "" {
		return SnoozeNone()
	}
	if n, ok := matchCount(reSnoozeMinutes, s); ok {
		return SnoozeMinutes(n)
	}
	if strings.Contains(s, ActivationSnoozeMorning) {
		return SnoozeNextMorning()
	}
	if n, ok := matchCount(reSnoozeHours, s); ok {
		return SnoozeHours(n)
	}
	return SnoozeNone()
}

func matchCount(re *regexp.Regexp, s string) (int, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n > maxSnoozeCount {
		return 0, false
	}
	return n, true
}
