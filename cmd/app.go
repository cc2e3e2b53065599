package cmd

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"

	"github.com/melih-ucgun/graft/internal/config"
	"github.com/melih-ucgun/graft/internal/core"
	"github.com/melih-ucgun/graft/internal/engine"
	"github.com/melih-ucgun/graft/internal/source"
	"github.com/melih-ucgun/graft/internal/state"
)

// app bundles everything a command needs. Close must be called.
type app struct {
	cfg    *config.Config
	logger core.Logger
	ledger *state.Ledger
	engine *engine.Engine

	closers []func() error
}

func openApp() (*app, error) {
	cfg, err := config.Load(homeDir)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	logger, err := a.newLogger()
	if err != nil {
		return nil, err
	}
	a.logger = logger

	storeCfg := state.DefaultStoreConfig(cfg.LedgerDir)
	storeCfg.Logger = logger.With("component", "ledger")
	ledger, err := state.OpenLedger(storeCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ledger = ledger
	a.closers = append(a.closers, ledger.Close)

	fsys := &core.RealFS{}
	a.engine = engine.NewEngine(
		source.NewManifestSource(cfg.ManifestDir),
		ledger,
		state.NewBackupManager(cfg.BackupDir, fsys),
		logger,
	)
	return a, nil
}

func (a *app) newLogger() (core.Logger, error) {
	level, err := core.ParseLogLevel(a.cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	switch {
	case verboseCount >= 2:
		level = core.LevelTrace
	case verboseCount == 1 && level > core.LevelDebug:
		level = core.LevelDebug
	}
	if level <= core.LevelDebug {
		pterm.EnableDebugMessages()
	}

	logger := core.NewDefaultLogger(os.Stderr, level)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		logger = logger.WithStructured(f)
	}
	return logger, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			pterm.Warning.Printf("close: %v\n", err)
		}
	}
	a.closers = nil
}
