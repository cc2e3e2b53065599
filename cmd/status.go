package cmd

import (
	"context"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/graft/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where graft keeps its state and how the last runs went",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		history, err := a.ledger.ListApplications(context.Background())
		if err != nil {
			return err
		}

		pterm.DefaultHeader.Println("graft status")
		pterm.DefaultTable.WithData([][]string{
			{"Home", a.cfg.Home},
			{"Manifests", a.cfg.ManifestDir},
			{"Backups", a.cfg.BackupDir},
			{"Ledger", a.cfg.LedgerDir},
			{"Log level", a.cfg.LogLevel},
		}).Render()

		if len(history) == 0 {
			pterm.Info.Println("No applications recorded yet.")
			return nil
		}

		counts := map[types.Status]int{}
		rollbackable := 0
		for _, rec := range history {
			counts[rec.Status]++
			if rec.CanRollback {
				rollbackable++
			}
		}
		pterm.DefaultSection.Println("Applications")
		pterm.DefaultTable.WithHasHeader().WithData([][]string{
			{"Total", "Completed", "Partial", "Failed", "Can roll back"},
			{
				itoa(len(history)),
				itoa(counts[types.StatusCompleted]),
				itoa(counts[types.StatusPartiallyCompleted]),
				itoa(counts[types.StatusFailed]),
				itoa(rollbackable),
			},
		}).Render()

		last := history[0]
		pterm.Info.Printf("Last run: %s (execution %s) %s at %s\n",
			last.ApplicationID, last.ExecutionID, styledStatus(last.Status), last.StartedAt.Local().Format(timeLayout))
		return nil
	},
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
