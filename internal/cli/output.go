package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"cuckoo/internal/reminder"
	"cuckoo/internal/services/tasks"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func clock(ts int64, loc *time.Location) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).In(loc).Format("2006-01-02 15:04")
}

func repeatName(r *reminder.Reminder) string {
	if r == nil || !r.Recurring() {
		return "-"
	}
	return r.Repeat.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// printView renders one task with its reminder.
func printView(w io.Writer, v *tasks.View, loc *time.Location) error {
	tw := table(w)
	fmt.Fprintf(tw, "id:\t%d\n", v.ID)
	fmt.Fprintf(tw, "brief:\t%s\n", v.Brief)
	if v.Detail != "" {
		fmt.Fprintf(tw, "detail:\t%s\n", v.Detail)
	}
	if v.Device != "" {
		fmt.Fprintf(tw, "device:\t%s\n", v.Device)
	}
	fmt.Fprintf(tw, "state:\t%s\n", v.State)
	if r := v.Remind; r != nil {
		fmt.Fprintf(tw, "remind:\t#%d at %s, repeat %s, context %s\n", r.ID, clock(r.NextFireAt, loc), repeatName(r), orDash(r.Context))
		if r.Closed {
			fmt.Fprintf(tw, "\tclosed\n")
		}
	}
	if v.QueuedAt > 0 {
		fmt.Fprintf(tw, "queued:\t%s\n", clock(v.QueuedAt, loc))
	}
	return tw.Flush()
}
