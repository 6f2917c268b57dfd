package cli

import (
	"strconv"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/history"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past backup cycles",
	Long:  "List recorded backup cycles, newest first",
	RunE:  runHistoryList,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old cycle records",
	RunE:  runHistoryPrune,
}

var (
	historyLimit int
	historyKeep  int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of cycles to show (0 for all)")
	historyPruneCmd.Flags().IntVar(&historyKeep, "keep", 100, "Number of most recent cycles to keep")
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

// historyView renders cycle records as a table
type historyView []history.Record

func (v historyView) Headers() []string {
	return []string{"ID", "Started", "Status", "Files", "Size", "Duration", "Archive / Error"}
}

func (v historyView) Rows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, rec := range v {
		duration := "-"
		if !rec.FinishedAt.IsZero() {
			duration = rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second).String()
		}
		detail := rec.ArchivePath
		if rec.Error != "" {
			detail = rec.Error
		}
		rows = append(rows, []string{
			truncate(rec.ID, 8),
			rec.StartedAt.Local().Format(time.DateTime),
			string(rec.Status),
			strconv.Itoa(rec.Files),
			humanize.Bytes(uint64(rec.Bytes)),
			duration,
			truncate(detail, 60),
		})
	}
	return rows
}

func (v historyView) EmptyMessage() string { return "No backup cycles recorded" }

func runHistoryList(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(cmd.OutOrStdout(), flags.OutputFormat, flags.Quiet, flags.Verbose)

	db, err := openHistory(GetConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if records == nil {
		records = []history.Record{}
	}
	return out.WriteSuccess("history", historyView(records))
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(cmd.OutOrStdout(), flags.OutputFormat, flags.Quiet, flags.Verbose)

	if historyKeep < 0 {
		return invalidArgument("--keep must not be negative")
	}

	db, err := openHistory(GetConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := db.Prune(cmd.Context(), historyKeep)
	if err != nil {
		return err
	}
	out.Log("Removed %d cycle records", removed)
	return out.WriteSuccess("history.prune", map[string]interface{}{
		"removed": removed,
		"kept":    historyKeep,
	})
}
