package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dl-alexandre/gdbackup/internal/types"
	"github.com/dl-alexandre/gdbackup/internal/utils"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// OutputWriter prints command results as a JSON envelope or a table
type OutputWriter struct {
	out      io.Writer
	logOut   io.Writer
	format   types.OutputFormat
	quiet    bool
	verbose  bool
	traceID  string
	warnings []types.CLIWarning
}

// NewOutputWriter creates a writer for out. Status lines go to stderr.
func NewOutputWriter(out io.Writer, format types.OutputFormat, quiet, verbose bool) *OutputWriter {
	return &OutputWriter{
		out:      out,
		logOut:   os.Stderr,
		format:   format,
		quiet:    quiet,
		verbose:  verbose,
		traceID:  uuid.New().String(),
		warnings: []types.CLIWarning{},
	}
}

// WithTraceID makes the envelope carry id instead of a fresh one, so a
// cycle's output can be matched with its log lines and history record.
func (w *OutputWriter) WithTraceID(id string) *OutputWriter {
	if id != "" {
		w.traceID = id
	}
	return w
}

// WithLogOutput redirects Log and Verbose
func (w *OutputWriter) WithLogOutput(logOut io.Writer) *OutputWriter {
	w.logOut = logOut
	return w
}

// AddWarning attaches a non-fatal notice to the next envelope
func (w *OutputWriter) AddWarning(code, message, severity string) {
	w.warnings = append(w.warnings, types.CLIWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	})
}

// WriteSuccess writes data. In table mode data must implement
// types.TableRenderer, anything else falls back to JSON.
func (w *OutputWriter) WriteSuccess(command string, data interface{}) error {
	if w.format == types.OutputFormatTable {
		if renderer, ok := data.(types.TableRenderer); ok {
			return w.renderTable(renderer)
		}
	}
	return w.writeJSON(w.envelope(command, data, nil))
}

// WriteError writes a failed result; errors are always JSON
func (w *OutputWriter) WriteError(command string, cliErr types.CLIError) error {
	return w.writeJSON(w.envelope(command, nil, []types.CLIError{cliErr}))
}

func (w *OutputWriter) envelope(command string, data interface{}, errs []types.CLIError) types.CLIOutput {
	if errs == nil {
		errs = []types.CLIError{}
	}
	return types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       w.traceID,
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        errs,
	}
}

func (w *OutputWriter) writeJSON(output types.CLIOutput) error {
	encoder := json.NewEncoder(w.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (w *OutputWriter) renderTable(renderer types.TableRenderer) error {
	rows := renderer.Rows()
	if len(rows) == 0 {
		if !w.quiet {
			fmt.Fprintln(w.out, renderer.EmptyMessage())
		}
		return nil
	}

	table := tablewriter.NewWriter(w.out)
	table.SetHeader(renderer.Headers())
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()

	for _, warn := range w.warnings {
		w.Log("warning: %s", warn.Message)
	}
	return nil
}

// Log writes a status line unless quiet
func (w *OutputWriter) Log(format string, args ...interface{}) {
	if !w.quiet {
		fmt.Fprintf(w.logOut, format+"\n", args...)
	}
}

// Verbose writes a status line when verbose is set
func (w *OutputWriter) Verbose(format string, args ...interface{}) {
	if w.verbose {
		fmt.Fprintf(w.logOut, "[VERBOSE] "+format+"\n", args...)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
