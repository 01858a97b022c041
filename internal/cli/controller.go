package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gridmind/swarmplan/internal/session"
	"github.com/spf13/cobra"
)

// newControllerCommand creates the controller container command of a
// distributed setup.
func newControllerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "controller",
		Short: "Run the controller and observer container",
		Long: "Runs the controller/observer container of a distributed setup. Unit agents\n" +
			"are expected in separate container processes started with 'swarmplan agents'.",
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

			return session.NewRunner(cfg, log).RunControllerContainer(ctx, onlyDate)
		},
	}
}
