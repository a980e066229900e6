// Package cli implements the cuckoo command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"cuckoo/internal/app"
	logx "cuckoo/pkg/logx"
)

const defaultConfig = "./config.json"

type globals struct {
	config string
	json   bool
}

// NewRootCmd builds the cuckoo command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "cuckoo",
		Short:         "Personal reminder daemon",
		Long:          "cuckoo keeps tasks with recurring reminders and delivers them through\na desktop command, Telegram or a mobile push service.",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("cuckoo {{.Version}}\n")

	def := os.Getenv("CUCKOO_CONFIG")
	if def == "" {
		def = defaultConfig
	}
	cmd.PersistentFlags().StringVarP(&g.config, "config", "c", def, "config file (JSON or YAML); env CUCKOO_CONFIG")
	cmd.PersistentFlags().BoolVar(&g.json, "json", false, "print JSON instead of tables")

	cmd.AddCommand(
		newServeCmd(g),
		newTaskCmd(g),
		newRemindCmd(g),
		newFollowingCmd(g),
		newPollCmd(g),
		newMCPCmd(g),
	)
	return cmd
}

// Execute runs the command line.
func Execute() error {
	return NewRootCmd().Execute()
}

// open loads storage only. CLI commands log warnings to stderr.
func (g *globals) open(cmd *cobra.Command) (*app.App, error) {
	return app.Open(g.config, app.WithLogger(logx.NewWriter(cmd.ErrOrStderr(), "warn")))
}
