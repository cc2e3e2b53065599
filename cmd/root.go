package cmd

import (
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "graft",
	Short: "Apply generated file changes to a tree, and take them back.",
	Long: `graft applies the changes of an execution (create, modify, delete; full
content or unified diffs) to a target directory, backs up what it touches,
records every run in a ledger and can roll a run back from its backups.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	verboseCount int
	homeDir      string
	logFile      string
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Plain slog for anything outside the engine logger.
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))

	// PTerm output to Stderr (to keep Stdout clean for piping)
	pterm.SetDefaultOutput(os.Stderr)
	pterm.Success.Writer = os.Stderr
	pterm.Info.Writer = os.Stderr
	pterm.Error.Writer = os.Stderr
	pterm.Warning.Writer = os.Stderr
	pterm.DefaultHeader.Writer = os.Stderr

	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "graft state directory (default $GRAFT_HOME or .graft)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write structured logs to this file")
	rootCmd.PersistentFlags().CountVarP(&verboseCount, "verbose", "v", "Increase verbosity level (-v, -vv)")
}
