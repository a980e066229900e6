package cli

import (
	"github.com/spf13/cobra"

	"cuckoo/internal/app"
	"cuckoo/internal/mcpserver"
)

func newMCPCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve task tools over MCP on stdin/stdout",
		Long:  "Serve add_task, list_following, get_task, delete_task and set_task_state\nto an MCP client over stdio. Reminders still fire from the daemon.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				return mcpserver.New(a.Tasks(), app.Version, a.Logger()).ServeStdio()
			})
		},
	}
}
