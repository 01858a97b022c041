package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gridmind/swarmplan/internal/session"
	"github.com/spf13/cobra"
)

// newAgentsCommand creates the unit-agent container command of a
// distributed setup.
func newAgentsCommand(opts *rootOptions) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Run one unit-agent container",
		Long: "Runs unit-agent container number --index of a distributed setup, hosting\n" +
			"every agent assigned to it. Serves until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return session.NewRunner(cfg, log).RunAgentContainer(ctx, index)
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "Index of this container in the configured container list")
	return cmd
}
