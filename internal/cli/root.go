// Package cli provides the swarmplan command line interface.
package cli

import (
	"fmt"
	"time"

	"github.com/gridmind/swarmplan/internal/config"
	"github.com/gridmind/swarmplan/pkg/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFile    string
	date       string
}

// NewRootCommand creates the root command with all subcommands.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "swarmplan",
		Short: "Distributed schedule negotiation for clusters of flexible units",
		Long: "swarmplan coordinates a set of unit agents that negotiate, per unit, one\n" +
			"operation schedule out of a private catalogue so that the cluster sum\n" +
			"tracks a weighted target curve.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Log file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.date, "date", "", "Run only the negotiation starting at this ISO-8601 date")

	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newControllerCommand(opts))
	rootCmd.AddCommand(newAgentsCommand(opts))

	return rootCmd
}

// load reads the configuration and builds the process logger.
func (o *rootOptions) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFile != "" {
		cfg.LogFile = o.logFile
	}
	log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	return cfg, log, nil
}

// onlyDate parses the optional --date filter.
func (o *rootOptions) onlyDate() (time.Time, error) {
	if o.date == "" {
		return time.Time{}, nil
	}
	date, err := time.Parse(time.RFC3339, o.date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", o.date, err)
	}
	return date, nil
}
