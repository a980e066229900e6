package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cuckoo/internal/app"
	logx "cuckoo/pkg/logx"
)

func newPollCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Fire every due reminder once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(g.config, app.WithLogger(logx.NewWriter(cmd.ErrOrStderr(), "info")))
			if err != nil {
				return err
			}
			defer a.Close()
			rep, err := a.Poll(cmd.Context())
			if g.json {
				if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil {
					return perr
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "due %d, fired %d, stale %d, failed %d\n", rep.Due, rep.Fired, rep.Stale, rep.Failed)
			}
			return err
		},
	}
}
