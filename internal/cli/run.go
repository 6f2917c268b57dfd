package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/types"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one backup cycle",
	Long:  "Mirror the Drive into the staging directory, write one archive and exit",
	RunE:  runOnce,
}

func init() {
	addConfigFlags(runCmd, false)
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(cmd.OutOrStdout(), flags.OutputFormat, flags.Quiet, flags.Verbose)

	rt, err := newServiceRuntime(cmd.Context(), GetConfig(), GetLogger())
	if err != nil {
		return err
	}
	defer rt.Close()

	out.Verbose("Staging directory: %s", rt.cfg.StagingDir())
	out.Verbose("Archive directory: %s", rt.cfg.ArchivePath())

	result, err := rt.runner.RunCycle(cmd.Context())
	if err != nil {
		return err
	}
	out.WithTraceID(result.ID)
	for _, f := range result.FailedFiles {
		out.AddWarning("FILE_SKIPPED", fmt.Sprintf("%s: %s", f.Path, f.Error), "warning")
	}
	return out.WriteSuccess("run", cycleView{result})
}

// cycleView renders one cycle result
type cycleView struct {
	*types.CycleResult
}

func (v cycleView) Headers() []string { return []string{"Field", "Value"} }

func (v cycleView) Rows() [][]string {
	rows := [][]string{
		{"ID", v.ID},
		{"Status", string(v.Status)},
		{"Archive", v.ArchivePath},
		{"Files", strconv.Itoa(v.Files)},
		{"Size", humanize.Bytes(uint64(v.Bytes))},
		{"Duration", v.Duration.Round(time.Millisecond).String()},
	}
	for _, f := range v.FailedFiles {
		rows = append(rows, []string{"Failed", truncate(f.Path+": "+f.Error, 100)})
	}
	return rows
}

func (v cycleView) EmptyMessage() string { return "No cycle" }
