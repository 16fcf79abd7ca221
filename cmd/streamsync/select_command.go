package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"streamsync/internal/selector"
)

func newSelectCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "select [url...]",
		Short: "Rank manifest URLs the way a cycle would",
		Long: "Filter and rank the given URLs with the configured selector keywords.\n" +
			"With no arguments, URLs are read from stdin one per line; blank lines and\n" +
			"lines starting with # are ignored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			urls := args
			if len(urls) == 0 {
				if urls, err = readURLs(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if len(urls) == 0 {
				return errors.New("no URLs given")
			}

			candidates, err := selector.New(selector.OptionsFromConfig(cfg.Selector)).Rank(urls)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, candidates)
			}
			rows := make([][]string, 0, len(candidates))
			for i, c := range candidates {
				bitrate := "-"
				if c.HasBitrate {
					bitrate = strconv.FormatInt(c.Bitrate, 10)
				}
				rows = append(rows, []string{strconv.Itoa(i + 1), bitrate, yesNo(c.HighQuality), c.URL})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Bitrate", "HQ", "URL"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print candidates as JSON")
	return cmd
}

func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read urls: %w", err)
	}
	return urls, nil
}
