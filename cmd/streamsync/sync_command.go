package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"streamsync/internal/daemon"
	"streamsync/internal/pipeline"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var skipMerge bool
	var skipPublish bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			lock, err := daemon.AcquireLock(cfg.LockPath())
			if err != nil {
				if errors.Is(err, daemon.ErrLocked) {
					return fmt.Errorf("%w; trigger the running daemon with POST /api/sync instead", err)
				}
				return err
			}
			defer func() { _ = lock.Unlock() }()

			runCfg := *cfg
			if skipMerge {
				runCfg.Merge.Enabled = false
			}
			if skipPublish {
				runCfg.Publish.Enabled = false
			}
			p, err := pipeline.NewFromConfig(&runCfg, logger)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			report, runErr := p.RunCycle(signalCtx)

			if jsonOutput {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				renderReport(cmd.OutOrStdout(), report)
			}
			if runErr != nil {
				return runErr
			}
			if len(report.Channels) > 0 && report.Updated == 0 {
				return errors.New("no channel was updated")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the cycle report as JSON")
	cmd.Flags().BoolVar(&skipMerge, "skip-merge", false, "Do not merge into the master playlist")
	cmd.Flags().BoolVar(&skipPublish, "skip-publish", false, "Do not commit or push")
	return cmd
}

func renderReport(out io.Writer, report pipeline.Report) {
	rows := make([][]string, 0, len(report.Channels))
	for _, ch := range report.Channels {
		detail := ch.Primary
		if ch.Error != "" {
			detail = ch.Error
		}
		rows = append(rows, []string{ch.Group, ch.Name, string(ch.Status), strconv.Itoa(ch.Candidates), detail})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(
			[]string{"Group", "Channel", "Status", "Candidates", "Primary / Error"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}
	fmt.Fprintf(out, "%d channels succeeded (%d retained, %d failed, %d skipped)\n",
		report.Updated, report.Retained, report.Failed, report.Skipped)
	for _, agg := range report.Aggregates {
		fmt.Fprintf(out, "Aggregate %s: %d files, %d entries -> %s\n", agg.Scope, agg.Files, agg.Entries, agg.Path)
	}
	switch {
	case report.MergeError != "":
		fmt.Fprintf(out, "Merge failed: %s\n", report.MergeError)
	case report.Merge != nil:
		fmt.Fprintf(out, "Merged %d managed entries into %s (%d kept)\n", report.Merge.Managed, report.Merge.Path, report.Merge.Foreign)
	}
	switch {
	case report.PublishError != "":
		fmt.Fprintf(out, "Publish failed: %s\n", report.PublishError)
	case report.Publish != nil:
		fmt.Fprintf(out, "Publish: %s\n", report.Publish.Outcome)
	}
	if report.Cancelled {
		fmt.Fprintln(out, "Cycle cancelled; merge and publish skipped")
	}
}
