package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pbench/internal/discovery"
	"pbench/internal/workflow"
)

func newStatesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "states",
		Short: "Show per-controller tarball counts in each workflow state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			census, err := discovery.Census(cmd.Context(), cfg.Paths.Archive)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(census) == 0 {
				fmt.Fprintf(out, "No controllers under %s\n", cfg.Paths.Archive)
				return nil
			}
			fmt.Fprintln(out, renderCensus(census, shouldColorize(out)))
			return nil
		},
	}
}

func renderCensus(census []discovery.ControllerCensus, colorize bool) string {
	states := workflow.PipelineStates()
	headers := []string{"Controller"}
	aligns := []columnAlignment{alignLeft}
	for _, state := range states {
		headers = append(headers, string(state))
		aligns = append(aligns, alignRight)
	}
	headers = append(headers, "Buckets")
	aligns = append(aligns, alignLeft)

	totals := make([]int, len(states))
	bucketTotal := 0
	rows := make([][]string, 0, len(census))
	for _, c := range census {
		row := []string{c.Controller}
		for i, state := range states {
			n := c.Counts[state]
			totals[i] += n
			row = append(row, countCell(state, n, colorize))
		}
		var buckets []string
		for _, bucket := range c.Buckets {
			n := c.Counts[bucket]
			bucketTotal += n
			_, number, _ := workflow.ParseState(string(bucket))
			buckets = append(buckets, fmt.Sprintf("%d:%s", number, humanize.Comma(int64(n))))
		}
		row = append(row, paint(strings.Join(buckets, " "), color.FgRed, colorize && len(buckets) > 0))
		rows = append(rows, row)
	}

	footer := []string{strconv.Itoa(len(census)) + " controllers"}
	for _, n := range totals {
		footer = append(footer, humanize.Comma(int64(n)))
	}
	footer = append(footer, humanize.Comma(int64(bucketTotal)))
	return renderTable(headers, rows, footer, aligns)
}

func countCell(state workflow.State, n int, colorize bool) string {
	cell := humanize.Comma(int64(n))
	if n == 0 {
		return cell
	}
	switch state {
	case workflow.StateToIndex, workflow.StateToReIndex, workflow.StateToIndexTool:
		return paint(cell, color.FgYellow, colorize)
	case workflow.StateIndexed:
		return paint(cell, color.FgGreen, colorize)
	case workflow.StateWontIndex:
		return paint(cell, color.FgRed, colorize)
	default:
		return cell
	}
}
