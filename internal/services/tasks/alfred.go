package tasks

import (
	"strconv"
	"strings"
	"time"

	"cuckoo/internal/reminder"
)

// AlfredIcon is an Alfred script-filter icon.
type AlfredIcon struct {
	Path string `json:"path"`
}

// AlfredItem is one row of an Alfred script-filter result.
type AlfredItem struct {
	Arg      string     `json:"arg,omitempty"`
	Icon     AlfredIcon `json:"icon"`
	Subtitle string     `json:"subtitle,omitempty"`
	Title    string     `json:"title"`
}

type AlfredOutput struct {
	Items []AlfredItem `json:"items"`
}

// AlfredItems renders the following list for Alfred: a header row per day,
// then one row per reminder with its time and repeat pattern.
func AlfredItems(upcoming []reminder.Upcoming, loc *time.Location) AlfredOutput {
	if loc == nil {
		loc = time.Local
	}
	out := AlfredOutput{Items: make([]AlfredItem, 0, len(upcoming)+4)}
	lastDate := ""
	for _, u := range upcoming {
		at := time.Unix(u.FireAt, 0).In(loc)
		date := at.Format("2006-01-02")
		if date != lastDate {
			lastDate = date
			out.Items = append(out.Items, AlfredItem{Title: "下列为" + date + "的提醒"})
		}

		subtitle := at.Format("2006-01-02 15:04:05")
		if u.Reminder.Recurring() {
			subtitle += " *" + u.Reminder.Repeat.String()
		}
		title := "#" + strconv.FormatInt(u.Task.ID, 10) + " " + u.Task.Brief
		if u.Reminder.Context != "" {
			title += " @" + u.Reminder.Context
		}
		out.Items = append(out.Items, AlfredItem{
			Arg:      strconv.FormatInt(u.Task.ID, 10),
			Icon:     AlfredIcon{Path: u.Task.IconFile},
			Subtitle: subtitle,
			Title:    strings.TrimSpace(title),
		})
	}
	return out
}
