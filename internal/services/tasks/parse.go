package tasks

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTime reads a reminder time given as unix seconds, RFC3339, or
// "YYYY-MM-DD HH:MM[:SS]" in loc.
func ParseTime(raw string, loc *time.Location) (int64, error) {
	raw = strings.TrimSpace(raw)
	if loc == nil {
		loc = time.Local
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Unix(), nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, &ValidationError{Field: "timestamp", Msg: fmt.Sprintf("unrecognized time %q", raw)}
}

// ParseHours turns a list of allowed hours such as "9-12,14,20-22" into a
// restricted-hours mask. Empty input means no restriction.
func ParseHours(raw string) ([]bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	mask := make([]bool, 24)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := hour(lo)
		if err != nil {
			return nil, err
		}
		to := from
		if isRange {
			if to, err = hour(hi); err != nil {
				return nil, err
			}
		}
		if to < from {
			return nil, &ValidationError{Field: "restricted_hours", Msg: fmt.Sprintf("range %q runs backwards", part)}
		}
		for h := from; h <= to; h++ {
			mask[h] = true
		}
	}
	return mask, nil
}

func hour(s string) (int, error) {
	h, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || h < 0 || h > 23 {
		return 0, &ValidationError{Field: "restricted_hours", Msg: fmt.Sprintf("bad hour %q", s)}
	}
	return h, nil
}
