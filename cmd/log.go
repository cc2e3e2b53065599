package cmd

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/graft/internal/types"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View the application log, newest first",
	Example: `  graft log
  graft log --execution exec-42
  graft log --template '{{range .}}{{shortID .ApplicationID}} {{.StartedAt | date "2006-01-02"}} {{.Status}} {{elapsed .StartedAt .CompletedAt}}{{"\n"}}{{end}}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		executionID, _ := cmd.Flags().GetString("execution")

		var history []types.ApplicationRecord
		if executionID != "" {
			history, err = a.ledger.ListApplicationsByExecution(ctx, executionID)
		} else {
			history, err = a.ledger.ListApplications(ctx)
		}
		if err != nil {
			return err
		}

		if tmpl, _ := cmd.Flags().GetString("template"); tmpl != "" {
			return renderTemplate(tmpl, history)
		}

		if len(history) == 0 {
			pterm.Info.Println("No applications recorded.")
			return nil
		}

		pterm.DefaultHeader.Println("Application Log")

		tableData := [][]string{{"ID", "Execution", "Date", "Status", "Files", "Rollback"}}
		for _, rec := range history {
			status := styledStatus(rec.Status)
			if rec.DryRun {
				status += " (dry run)"
			}
			rollback := ""
			if rec.CanRollback {
				rollback = "yes"
			}
			tableData = append(tableData, []string{
				rec.ApplicationID,
				rec.ExecutionID,
				rec.StartedAt.Local().Format(timeLayout),
				status,
				fmt.Sprintf("%d/%d ok, %d failed", rec.SuccessfulFiles, rec.TotalFiles, rec.FailedFiles),
				rollback,
			})
		}

		return pterm.DefaultTable.WithHasHeader().WithData(tableData).Render()
	},
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().String("execution", "", "Only show applications of this execution")
	logCmd.Flags().String("template", "", "Render the records with a Go template (sprig functions available)")
}
