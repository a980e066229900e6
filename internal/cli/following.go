package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cuckoo/internal/app"
	"cuckoo/internal/reminder"
	"cuckoo/internal/services/tasks"
)

func newFollowingCmd(g *globals) *cobra.Command {
	var (
		current string
		alfred  bool
	)
	cmd := &cobra.Command{
		Use:   "following",
		Short: "List upcoming reminders in firing order",
		Long:  "List upcoming reminders. Without --context the configured detector\ndecides which context-bound reminders are shown.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				ctxName := current
				if !cmd.Flags().Changed("context") {
					ctxName = a.CurrentContext(cmd.Context())
				}
				list, err := a.Tasks().Following(cmd.Context(), ctxName)
				if err != nil {
					return err
				}
				switch {
				case alfred:
					return printJSON(cmd.OutOrStdout(), tasks.AlfredItems(list, a.Location()))
				case g.json:
					if list == nil {
						list = []reminder.Upcoming{}
					}
					return printJSON(cmd.OutOrStdout(), list)
				}
				tw := table(cmd.OutOrStdout())
				fmt.Fprintln(tw, "FIRE AT\tTASK\tREPEAT\tCONTEXT\tBRIEF")
				for _, u := range list {
					rem := u.Reminder
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", clock(u.FireAt, a.Location()), u.Task.ID, repeatName(&rem), orDash(rem.Context), u.Task.Brief)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&current, "context", "", "current context (default: ask the detector)")
	cmd.Flags().BoolVar(&alfred, "alfred", false, "print an Alfred script filter document")
	return cmd
}
