package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/graft/internal/config"
	"github.com/melih-ucgun/graft/internal/engine"
	"github.com/melih-ucgun/graft/internal/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply <executionId>",
	Short: "Apply the changes of an execution to the target directory",
	Long: `Reads the changes of an execution from the manifest directory and applies
them one by one. A failing file never stops the rest of the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Ctrl+C stops before the next file; what was applied is still recorded.
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		opts := applyOptions(cmd, a.cfg)
		if opts.DryRun {
			pterm.DefaultHeader.Println("Dry run: nothing will be written")
		}

		rec, err := a.engine.Apply(ctx, args[0], opts)
		if rec == nil {
			return err
		}

		if renderErr := printAppliedFiles(rec.AppliedFiles); renderErr != nil {
			pterm.Warning.Printf("render: %v\n", renderErr)
		}
		if opts.DryRun {
			printDiffs(os.Stderr, rec.AppliedFiles)
		}
		printApplicationSummary(rec)

		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if rec.Status != types.StatusCompleted {
			return fmt.Errorf("application %s finished %s", rec.ApplicationID, rec.Status)
		}
		return nil
	},
}

func applyOptions(cmd *cobra.Command, cfg *config.Config) engine.ApplyOptions {
	opts := engine.DefaultApplyOptions()
	d := cfg.Defaults
	opts.CreateBackup = config.Bool(d.CreateBackup, opts.CreateBackup)
	opts.OverwriteExisting = config.Bool(d.OverwriteExisting, opts.OverwriteExisting)
	opts.CreateDirectories = config.Bool(d.CreateDirectories, opts.CreateDirectories)
	opts.UseDiffMode = config.Bool(d.UseDiffMode, opts.UseDiffMode)

	opts.TargetDirectory = "."
	if d.TargetDirectory != "" {
		opts.TargetDirectory = d.TargetDirectory
	}
	if cmd.Flags().Changed("target") {
		opts.TargetDirectory, _ = cmd.Flags().GetString("target")
	}

	flags := cmd.Flags()
	opts.DryRun, _ = flags.GetBool("dry-run")
	if v, _ := flags.GetBool("no-backup"); v {
		opts.CreateBackup = false
	}
	if v, _ := flags.GetBool("no-overwrite"); v {
		opts.OverwriteExisting = false
	}
	if v, _ := flags.GetBool("no-mkdir"); v {
		opts.CreateDirectories = false
	}
	if v, _ := flags.GetBool("no-diff"); v {
		opts.UseDiffMode = false
	}
	opts.FileFilter, _ = flags.GetStringSlice("only")
	opts.When, _ = flags.GetString("when")
	return opts
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringP("target", "t", ".", "Target directory the file paths are relative to")
	applyCmd.Flags().Bool("dry-run", false, "Show what would change without writing anything")
	applyCmd.Flags().Bool("no-backup", false, "Do not back up modified or deleted files")
	applyCmd.Flags().Bool("no-overwrite", false, "Skip CREATE changes whose file already exists")
	applyCmd.Flags().Bool("no-mkdir", false, "Do not create missing parent directories")
	applyCmd.Flags().Bool("no-diff", false, "Write diff content verbatim instead of patching")
	applyCmd.Flags().StringSlice("only", nil, "Only apply these file paths (repeatable)")
	applyCmd.Flags().String("when", "", `Expression selecting changes, e.g. 'ext == ".go" && operation != "DELETE"'`)
}
