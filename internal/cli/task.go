package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cuckoo/internal/app"
	"cuckoo/internal/reminder"
	"cuckoo/internal/services/tasks"
	"cuckoo/internal/storage"
)

func newTaskCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(
		newTaskAddCmd(g),
		newTaskListCmd(g),
		newTaskShowCmd(g),
		newTaskEditCmd(g),
		newTaskRmCmd(g),
		newTaskDupCmd(g),
		newTaskStateCmd(g, "pause", "Stop reminding about a task", reminder.TaskPaused),
		newTaskStateCmd(g, "resume", "Resume reminders for a task", reminder.TaskActive),
		newTaskStateCmd(g, "done", "Mark a task finished", reminder.TaskDone),
		newTaskLogsCmd(g),
	)
	return cmd
}

// withApp opens storage, runs fn and closes it.
func (g *globals) withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	a, err := g.open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func (g *globals) showView(cmd *cobra.Command, a *app.App, v *tasks.View) error {
	if g.json {
		return printJSON(cmd.OutOrStdout(), v)
	}
	return printView(cmd.OutOrStdout(), v, a.Location())
}

type remindFlags struct {
	at, repeat, context, hours string
}

func (f *remindFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.at, "at", "", `reminder time: "2006-01-02 15:04", RFC3339 or unix seconds`)
	cmd.Flags().StringVar(&f.repeat, "repeat", "", "repeat pattern (daily, weekly, monthly, yearly, end_of_month, every_N_minutes|hours|days)")
	cmd.Flags().StringVar(&f.context, "context", "", "only remind in this context")
	cmd.Flags().StringVar(&f.hours, "hours", "", `hours the reminder may be listed, e.g. "9-18,21"`)
}

func (f *remindFlags) spec(a *app.App) (*tasks.RemindSpec, error) {
	at, err := tasks.ParseTime(f.at, a.Location())
	if err != nil {
		return nil, err
	}
	hours, err := tasks.ParseHours(f.hours)
	if err != nil {
		return nil, err
	}
	return &tasks.RemindSpec{At: at, Repeat: f.repeat, Context: f.context, RestrictedHours: hours}, nil
}

func newTaskAddCmd(g *globals) *cobra.Command {
	var (
		in     tasks.NewTask
		paused bool
		rf     remindFlags
	)
	cmd := &cobra.Command{
		Use:   "add <brief...>",
		Short: "Create a task, optionally with a reminder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				in.Brief = strings.Join(args, " ")
				if paused {
					in.State = reminder.TaskPaused
				}
				if rf.at != "" {
					spec, err := rf.spec(a)
					if err != nil {
						return err
					}
					in.Remind = spec
				} else if rf.repeat != "" || rf.context != "" || rf.hours != "" {
					return fmt.Errorf("--repeat, --context and --hours need --at")
				}
				v, err := a.Tasks().Create(cmd.Context(), in)
				if err != nil {
					return err
				}
				return g.showView(cmd, a, v)
			})
		},
	}
	cmd.Flags().StringVar(&in.Detail, "detail", "", "longer description")
	cmd.Flags().StringVar(&in.Device, "device", "", "device the task belongs to")
	cmd.Flags().StringVar(&in.Icon, "icon", "", "notification icon")
	cmd.Flags().BoolVar(&paused, "paused", false, "create the task paused")
	rf.register(cmd)
	return cmd
}

func newTaskListCmd(g *globals) *cobra.Command {
	var q storage.TaskQuery
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Search tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				list, err := a.Tasks().Search(cmd.Context(), q)
				if err != nil {
					return err
				}
				if g.json {
					if list == nil {
						list = []reminder.Task{}
					}
					return printJSON(cmd.OutOrStdout(), list)
				}
				tw := table(cmd.OutOrStdout())
				fmt.Fprintln(tw, "ID\tSTATE\tDEVICE\tBRIEF")
				for _, t := range list {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", t.ID, t.State, orDash(t.Device), t.Brief)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&q.Brief, "brief", "", "brief contains")
	cmd.Flags().StringVar(&q.Detail, "detail", "", "detail contains")
	cmd.Flags().StringVar(&q.State, "state", "", "active, paused or done")
	cmd.Flags().StringVar(&q.Context, "context", "", "reminder context")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "maximum rows")
	return cmd
}

func newTaskShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task and its reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.withApp(cmd, func(a *app.App) error {
				v, err := a.Tasks().Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				return g.showView(cmd, a, v)
			})
		},
	}
}

func newTaskEditCmd(g *globals) *cobra.Command {
	var brief, detail, device, icon string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a task's text fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var p tasks.TaskPatch
			set := func(name string, v *string, dst **string) {
				if cmd.Flags().Changed(name) {
					*dst = v
				}
			}
			set("brief", &brief, &p.Brief)
			set("detail", &detail, &p.Detail)
			set("device", &device, &p.Device)
			set("icon", &icon, &p.Icon)
			return g.withApp(cmd, func(a *app.App) error {
				v, err := a.Tasks().Update(cmd.Context(), id, p)
				if err != nil {
					return err
				}
				return g.showView(cmd, a, v)
			})
		},
	}
	cmd.Flags().StringVar(&brief, "brief", "", "new brief")
	cmd.Flags().StringVar(&detail, "detail", "", "new detail")
	cmd.Flags().StringVar(&device, "device", "", "new device")
	cmd.Flags().StringVar(&icon, "icon", "", "new icon")
	return cmd
}

func newTaskRmCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id> [id...]",
		Aliases: []string{"delete"},
		Short:   "Delete tasks and their reminders",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				for _, arg := range args {
					id, err := parseID(arg)
					if err != nil {
						return err
					}
					if err := a.Tasks().Delete(cmd.Context(), id); err != nil {
						return fmt.Errorf("delete %d: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted task %d\n", id)
				}
				return nil
			})
		},
	}
}

func newTaskDupCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "dup <id>",
		Short: "Copy a task with its reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.withApp(cmd, func(a *app.App) error {
				v, err := a.Tasks().Duplicate(cmd.Context(), id)
				if err != nil {
					return err
				}
				return g.showView(cmd, a, v)
			})
		},
	}
}

func newTaskStateCmd(g *globals, use, short, state string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.withApp(cmd, func(a *app.App) error {
				v, err := a.Tasks().SetState(cmd.Context(), id, state)
				if err != nil {
					return err
				}
				return g.showView(cmd, a, v)
			})
		},
	}
}

func newTaskLogsCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Show when a task's reminder fired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.withApp(cmd, func(a *app.App) error {
				logs, err := a.Tasks().Logs(cmd.Context(), id, limit)
				if err != nil {
					return err
				}
				if g.json {
					if logs == nil {
						logs = []reminder.RemindLog{}
					}
					return printJSON(cmd.OutOrStdout(), logs)
				}
				tw := table(cmd.OutOrStdout())
				fmt.Fprintln(tw, "PLANNED\tACTUAL")
				for _, l := range logs {
					fmt.Fprintf(tw, "%s\t%s\n", clock(l.PlannedAt, a.Location()), clock(l.ActualAt, a.Location()))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}
