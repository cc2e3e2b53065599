package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"

	"github.com/melih-ucgun/graft/internal/core"
	"github.com/melih-ucgun/graft/internal/types"
)

const timeLayout = "2006-01-02 15:04:05"

func styledStatus(s types.Status) string {
	style := pterm.NewStyle(pterm.FgGreen)
	switch s {
	case types.StatusFailed:
		style = pterm.NewStyle(pterm.FgRed)
	case types.StatusPartiallyCompleted, types.StatusSkipped:
		style = pterm.NewStyle(pterm.FgYellow)
	case types.StatusPending, types.StatusInProgress:
		style = pterm.NewStyle(pterm.FgGray)
	}
	return style.Sprint(string(s))
}

func printAppliedFiles(files []types.AppliedFile) error {
	if len(files) == 0 {
		pterm.Info.Println("No files processed.")
		return nil
	}
	tableData := [][]string{{"File", "Operation", "Status", "Strategy", "Bytes", "Backup", "Note"}}
	for _, f := range files {
		note := f.Error
		if note == "" {
			note = f.Warning
		}
		backup := ""
		if f.BackupPath != "" {
			backup = "yes"
		}
		tableData = append(tableData, []string{
			f.FilePath,
			string(f.Operation),
			styledStatus(f.Status),
			string(f.Strategy),
			fmt.Sprintf("%d", f.BytesWritten),
			backup,
			note,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(tableData).Render()
}

func printApplicationSummary(rec *types.ApplicationRecord) {
	msg := fmt.Sprintf("Application %s: %d success, %d failed, %d skipped of %d",
		rec.ApplicationID, rec.SuccessfulFiles, rec.FailedFiles, rec.SkippedFiles, rec.TotalFiles)
	switch rec.Status {
	case types.StatusCompleted:
		pterm.Success.Println(msg)
	case types.StatusPartiallyCompleted:
		pterm.Warning.Println(msg)
	default:
		pterm.Error.Println(msg)
	}
	if rec.CanRollback {
		pterm.Info.Printf("Roll back with: graft rollback %s\n", rec.ApplicationID)
	}
}

func printDiffs(w io.Writer, files []types.AppliedFile) {
	for _, f := range files {
		if f.Diff == "" {
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(f.Diff, "\n"), "\n") {
			switch {
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
				fmt.Fprintln(w, pterm.Bold.Sprint(line))
			case strings.HasPrefix(line, "+"):
				fmt.Fprintln(w, pterm.FgGreen.Sprint(line))
			case strings.HasPrefix(line, "-"):
				fmt.Fprintln(w, pterm.FgRed.Sprint(line))
			default:
				fmt.Fprintln(w, line)
			}
		}
	}
}

// renderTemplate writes data through a sprig template to stdout.
func renderTemplate(tmpl string, data any) error {
	out, err := core.ExecuteTemplate(tmpl, data)
	if err != nil {
		return fmt.Errorf("template: %w", err)
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	_, err = io.WriteString(os.Stdout, out)
	return err
}
