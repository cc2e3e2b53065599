package cmd

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/graft/internal/types"
)

// applicationView is what `show --template` renders.
type applicationView struct {
	*types.ApplicationRecord
	Rollbacks []types.RollbackRecord
}

var showCmd = &cobra.Command{
	Use:   "show <applicationId>",
	Short: "Show one application with its files and rollbacks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		rec, err := a.ledger.GetApplication(ctx, args[0])
		if err != nil {
			return err
		}
		rollbacks, err := a.ledger.ListRollbacks(ctx, rec.ApplicationID)
		if err != nil {
			return err
		}

		if tmpl, _ := cmd.Flags().GetString("template"); tmpl != "" {
			return renderTemplate(tmpl, applicationView{ApplicationRecord: rec, Rollbacks: rollbacks})
		}

		pterm.DefaultHeader.Printf("Application %s\n", rec.ApplicationID)
		completed := "-"
		if rec.CompletedAt != nil {
			completed = rec.CompletedAt.Local().Format(timeLayout)
		}
		pterm.DefaultTable.WithData([][]string{
			{"Execution", rec.ExecutionID},
			{"Target", rec.TargetDirectory},
			{"Status", styledStatus(rec.Status)},
			{"Started", rec.StartedAt.Local().Format(timeLayout)},
			{"Completed", completed},
			{"Dry run", yesNo(rec.DryRun)},
			{"Can roll back", yesNo(rec.CanRollback)},
		}).Render()

		if err := printAppliedFiles(rec.AppliedFiles); err != nil {
			return err
		}

		if len(rollbacks) == 0 {
			return nil
		}
		pterm.DefaultSection.Println("Rollbacks")
		tableData := [][]string{{"ID", "Date", "Status", "Restored", "Deleted", "Failed"}}
		for _, rb := range rollbacks {
			status := styledStatus(rb.Status)
			if rb.DryRun {
				status += " (dry run)"
			}
			tableData = append(tableData, []string{
				rb.RollbackID,
				rb.StartedAt.Local().Format(timeLayout),
				status,
				itoa(len(rb.FilesRestored)),
				itoa(len(rb.FilesDeleted)),
				itoa(rb.FailedFiles),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(tableData).Render()
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().String("template", "", "Render the application with a Go template (sprig functions available)")
}
