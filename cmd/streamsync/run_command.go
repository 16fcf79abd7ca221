package main

import (
	"github.com/spf13/cobra"

	"streamsync/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var development bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler in the foreground until interrupted",
		Long: "Run one cycle immediately and then one per schedule.interval_minutes.\n" +
			"SIGINT or SIGTERM lets the in-flight channel finish before exiting.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(),
				Development: development,
			})
		},
	}
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	return cmd
}
