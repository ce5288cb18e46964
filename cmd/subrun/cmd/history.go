package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrepp/prism-subprocess/pkg/history"
	"github.com/jrepp/prism-subprocess/pkg/shellutil"
	"github.com/jrepp/prism-subprocess/pkg/subprocess"
)

var (
	historyLimit int
	historyPrune time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs",
	Long:  `Show recent runs recorded in the local history database.`,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show (0 for all)")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "delete runs older than this before listing")
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		uiInstance.Error(fmt.Sprintf("Failed to open history: %v", err))
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if historyPrune > 0 {
		deleted, err := store.Prune(ctx, time.Now().Add(-historyPrune))
		if err != nil {
			return err
		}
		uiInstance.Info(fmt.Sprintf("Pruned %d runs", deleted))
	}

	entries, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		uiInstance.Subtle("No runs recorded")
		return nil
	}

	table := uiInstance.NewTable("STARTED", "NAME", "CODE", "DURATION", "ERROR", "COMMAND")
	for _, e := range entries {
		table.AddRow(
			e.StartedAt.Format(time.DateTime),
			e.Name,
			returnCodeString(e),
			e.Duration.Round(time.Millisecond).String(),
			e.ErrorCode,
			shellutil.CommandLine(e.Args),
		)
	}
	table.Render()

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	uiInstance.Println("")
	uiInstance.KeyValue("Total runs", strconv.FormatInt(stats.TotalRuns, 10))
	uiInstance.KeyValue("Failed", strconv.FormatInt(stats.FailedRuns, 10))
	uiInstance.KeyValue("Timed out", strconv.FormatInt(stats.TimedOut, 10))
	return nil
}

func returnCodeString(e history.Entry) string {
	switch {
	case e.ReturnCode == subprocess.ReturnCodeUnknown:
		return "-"
	case e.ReturnCode < 0:
		return fmt.Sprintf("sig %d", -e.ReturnCode)
	default:
		return strconv.Itoa(e.ReturnCode)
	}
}
