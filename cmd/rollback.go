package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/graft/internal/config"
	"github.com/melih-ucgun/graft/internal/engine"
	"github.com/melih-ucgun/graft/internal/types"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <applicationId>",
	Short: "Restore the files an application changed from its backups",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		opts := rollbackOptions(cmd, a.cfg)
		if opts.DryRun {
			pterm.DefaultHeader.Printf("Dry run: rollback of %s\n", args[0])
		} else {
			pterm.DefaultHeader.Printf("Rolling back %s\n", args[0])
		}

		rec, err := a.engine.Rollback(ctx, args[0], opts)
		if rec == nil {
			return err
		}

		for _, f := range rec.FilesRestored {
			pterm.Success.Printf("Restored: %s\n", f)
		}
		for _, f := range rec.FilesDeleted {
			pterm.Success.Printf("Deleted:  %s\n", f)
		}
		if rec.Error != "" {
			for _, line := range strings.Split(rec.Error, "\n") {
				pterm.Error.Println(line)
			}
		}
		pterm.Info.Printf("Rollback %s: %s (%d success, %d failed of %d)\n",
			rec.RollbackID, styledStatus(rec.Status), rec.SuccessfulFiles, rec.FailedFiles, rec.TotalFiles)

		if err != nil {
			return err
		}
		if rec.Status != types.StatusCompleted {
			return fmt.Errorf("rollback %s finished %s", rec.RollbackID, rec.Status)
		}
		return nil
	},
}

func rollbackOptions(cmd *cobra.Command, cfg *config.Config) engine.RollbackOptions {
	opts := engine.DefaultRollbackOptions()
	opts.DeleteNewFiles = config.Bool(cfg.Defaults.DeleteNewFiles, opts.DeleteNewFiles)
	opts.RestoreDeletedFiles = config.Bool(cfg.Defaults.RestoreDeletedFiles, opts.RestoreDeletedFiles)

	flags := cmd.Flags()
	if v, _ := flags.GetBool("keep-new"); v {
		opts.DeleteNewFiles = false
	}
	if v, _ := flags.GetBool("keep-deleted"); v {
		opts.RestoreDeletedFiles = false
	}
	opts.DryRun, _ = flags.GetBool("dry-run")
	opts.FileFilter, _ = flags.GetStringSlice("only")
	return opts
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().Bool("keep-new", false, "Do not delete files the application created")
	rollbackCmd.Flags().Bool("keep-deleted", false, "Do not restore files the application deleted")
	rollbackCmd.Flags().Bool("dry-run", false, "List what would be restored or deleted")
	rollbackCmd.Flags().StringSlice("only", nil, "Only roll back these file paths (repeatable)")
}
