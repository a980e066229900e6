package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"cuckoo/internal/app"
	"cuckoo/internal/reminder"
	"cuckoo/internal/services/tasks"
)

func newRemindCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Manage reminders",
	}
	cmd.AddCommand(newRemindSetCmd(g), newRemindEditCmd(g))
	return cmd
}

func (g *globals) showReminder(cmd *cobra.Command, a *app.App, r *reminder.Reminder) error {
	if g.json {
		return printJSON(cmd.OutOrStdout(), r)
	}
	return printReminder(cmd.OutOrStdout(), r, a.Location())
}

func printReminder(w io.Writer, r *reminder.Reminder, loc *time.Location) error {
	state := "open"
	if r.Closed {
		state = "closed"
	}
	_, err := fmt.Fprintf(w, "remind #%d for task %d: %s, repeat %s, context %s, %s\n",
		r.ID, r.TaskID, clock(r.NextFireAt, loc), repeatName(r), orDash(r.Context), state)
	return err
}

func newRemindSetCmd(g *globals) *cobra.Command {
	var rf remindFlags
	cmd := &cobra.Command{
		Use:   "set <task-id>",
		Short: "Give a task a new reminder, replacing any existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.withApp(cmd, func(a *app.App) error {
				spec, err := rf.spec(a)
				if err != nil {
					return err
				}
				r, err := a.Tasks().Remind(cmd.Context(), id, *spec)
				if err != nil {
					return err
				}
				return g.showReminder(cmd, a, r)
			})
		},
	}
	rf.register(cmd)
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newRemindEditCmd(g *globals) *cobra.Command {
	var rf remindFlags
	cmd := &cobra.Command{
		Use:   "edit <remind-id>",
		Short: "Change fields of an existing reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.withApp(cmd, func(a *app.App) error {
				var p tasks.RemindPatch
				fl := cmd.Flags()
				if fl.Changed("at") {
					at, err := tasks.ParseTime(rf.at, a.Location())
					if err != nil {
						return err
					}
					p.At = &at
				}
				if fl.Changed("repeat") {
					p.Repeat = &rf.repeat
				}
				if fl.Changed("context") {
					p.Context = &rf.context
				}
				if fl.Changed("hours") {
					hours, err := tasks.ParseHours(rf.hours)
					if err != nil {
						return err
					}
					p.RestrictedHours = &hours
				}
				r, err := a.Tasks().PatchReminder(cmd.Context(), id, p)
				if err != nil {
					return err
				}
				return g.showReminder(cmd, a, r)
			})
		},
	}
	rf.register(cmd)
	return cmd
}
