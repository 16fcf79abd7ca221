package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"streamsync/internal/catalog"
	"streamsync/internal/daemon"
	"streamsync/internal/merge"
	"streamsync/internal/publish"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge the current channel playlists into the master playlist",
		Long: "Fetch merge.remote_url, back up the local master playlist and replace its\n" +
			"managed section with the current channel playlists. Runs even when\n" +
			"merge.enabled is false.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Merge.RemoteURL) == "" {
				return errors.New("merge.remote_url is not configured")
			}
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			lock, err := daemon.AcquireLock(cfg.LockPath())
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			engine := merge.NewFromConfig(cfg, catalog.NewStore(cfg, logger), logger)
			result, err := engine.Merge(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Master playlist: %s\n", result.Path)
			if result.BackupPath != "" {
				fmt.Fprintf(out, "Backup:          %s (%d pruned)\n", result.BackupPath, result.Pruned)
			}
			fmt.Fprintf(out, "Managed entries: %d\n", result.Managed)
			fmt.Fprintf(out, "Kept entries:    %d\n", result.Foreign)
			fmt.Fprintf(out, "Replaced:        %d\n", result.Removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the merge result as JSON")
	return cmd
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Commit and push the playlist repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			runCfg := *cfg
			runCfg.Publish.DryRun = runCfg.Publish.DryRun || dryRun
			result, err := publish.NewFromConfig(&runCfg, logger).Publish(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Outcome: %s\n", result.Outcome)
			for _, line := range result.Commands {
				fmt.Fprintf(out, "  %s\n", line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the git commands without running them")
	return cmd
}
