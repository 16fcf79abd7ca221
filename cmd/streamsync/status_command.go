package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"streamsync/internal/backup"
	"streamsync/internal/catalog"
	"streamsync/internal/daemon"
	"streamsync/internal/logging"
)

type statusOutput struct {
	DaemonRunning bool                  `json:"daemon_running"`
	LockFile      string                `json:"lock_file"`
	OutputDir     string                `json:"output_dir"`
	Channels      []catalog.ChannelFile `json:"channels"`
	Backups       []string              `json:"backups,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the playlist tree and whether a daemon holds the lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := logging.NewNop()
			store := catalog.NewStore(cfg, logger)

			status := statusOutput{
				LockFile:  cfg.LockPath(),
				OutputDir: store.OutputDir(),
				Channels:  store.Inventory(),
			}
			lock, err := daemon.AcquireLock(cfg.LockPath())
			switch {
			case errors.Is(err, daemon.ErrLocked):
				status.DaemonRunning = true
			case err != nil:
				return err
			default:
				_ = lock.Unlock()
			}
			if cfg.Merge.Enabled {
				backups, err := backup.New(cfg.Paths.BackupDir, cfg.Backup.Retention, logger).List(cfg.Merge.LocalPath)
				if err != nil {
					return err
				}
				status.Backups = backups
			}

			if jsonOutput {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if status.DaemonRunning {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "Running (lock held)", colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo, "Not running", colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Output directory", statusInfo, status.OutputDir, colorize))
			if cfg.Merge.Enabled {
				fmt.Fprintln(out, renderStatusLine("Master backups", statusInfo, strconv.Itoa(len(status.Backups)), colorize))
			}
			fmt.Fprintln(out)

			if len(status.Channels) == 0 {
				fmt.Fprintln(out, "No channels configured")
				return nil
			}
			rows := make([][]string, 0, len(status.Channels))
			for _, ch := range status.Channels {
				updated := "never"
				if ch.Exists {
					updated = ch.ModTime.Format(catalog.TimestampLayout)
				}
				name := ch.Name
				if !ch.Configured {
					name += " (unconfigured)"
				}
				rows = append(rows, []string{ch.Group, name, strconv.Itoa(ch.Entries), updated, ch.Primary})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Group", "Channel", "Entries", "Updated", "Primary"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON")
	return cmd
}
