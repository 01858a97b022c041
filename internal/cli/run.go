package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gridmind/swarmplan/internal/session"
	"github.com/spf13/cobra"
)

// newRunCommand creates the standalone run command: controller,
// observer and all unit-agent containers in one process.
func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a complete negotiation system in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			onlyDate, err := opts.onlyDate()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return session.NewRunner(cfg, log).Run(ctx, onlyDate)
		},
	}
}
