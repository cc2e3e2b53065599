package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/melih-ucgun/graft/internal/core"
	"github.com/melih-ucgun/graft/internal/state"
	"github.com/melih-ucgun/graft/internal/types"
)

// ExecutionSource hands the engine the ordered changes of an execution.
// Implementations return an error wrapping types.ErrNotFound for unknown ids.
type ExecutionSource interface {
	Changes(ctx context.Context, executionID string) ([]types.GeneratedChange, error)
}

// Ledger is the slice of state.Ledger the engine needs.
type Ledger interface {
	SaveApplication(ctx context.Context, rec *types.ApplicationRecord) error
	GetApplication(ctx context.Context, id string) (*types.ApplicationRecord, error)
	SaveRollback(ctx context.Context, rec *types.RollbackRecord) error
}

// Engine applies executions to a directory tree and rolls them back.
type Engine struct {
	Source  ExecutionSource
	Ledger  Ledger
	Backups *state.BackupManager
	FS      core.FileSystem
	Logger  core.Logger

	mutator *Mutator
	now     func() time.Time
	newID   func() string
}

// NewEngine wires an Engine. The filesystem is taken from backups so that
// backups and mutations always see the same tree.
func NewEngine(source ExecutionSource, ledger Ledger, backups *state.BackupManager, logger core.Logger) *Engine {
	if logger == nil {
		logger = core.NopLogger{}
	}
	var fsys core.FileSystem = &core.RealFS{}
	if backups != nil && backups.FS != nil {
		fsys = backups.FS
	}
	return &Engine{
		Source:  source,
		Ledger:  ledger,
		Backups: backups,
		FS:      fsys,
		Logger:  logger,
		mutator: NewMutator(fsys, backups, logger),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
}

// Apply looks up executionID and applies its changes under opts.TargetDirectory.
func (e *Engine) Apply(ctx context.Context, executionID string, opts ApplyOptions) (*types.ApplicationRecord, error) {
	if e.Source == nil {
		return nil, errors.New("engine: no execution source configured")
	}
	changes, err := e.Source.Changes(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("engine: execution %s: %w", executionID, err)
	}
	return e.ApplyChanges(ctx, executionID, changes, opts)
}

// ApplyChanges runs changes sequentially and persists the resulting record.
// Per-file failures never abort the batch. A persistence failure is returned
// together with the finalized record.
func (e *Engine) ApplyChanges(ctx context.Context, executionID string, changes []types.GeneratedChange, opts ApplyOptions) (*types.ApplicationRecord, error) {
	selector, err := NewSelector(opts.FileFilter, opts.When)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	selected, err := selector.Filter(changes)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	rec := &types.ApplicationRecord{
		ApplicationID:   e.newID(),
		ExecutionID:     executionID,
		Status:          types.StatusPending,
		TargetDirectory: opts.TargetDirectory,
		AppliedFiles:    make([]types.AppliedFile, 0, len(selected)),
		StartedAt:       e.now(),
		DryRun:          opts.DryRun,
	}
	log := e.Logger.With("application", rec.ApplicationID)

	rec.Status = types.StatusInProgress
	log.Info("Starting application", "execution", executionID, "files", len(selected), "dry_run", opts.DryRun)

	for _, change := range selected {
		if ctx.Err() != nil {
			log.Warn("Application interrupted", "processed", len(rec.AppliedFiles), "remaining", len(selected)-len(rec.AppliedFiles))
			break
		}
		applied := e.mutator.Mutate(change, rec.ApplicationID, opts)
		if applied.BackupPath != "" {
			rec.CanRollback = true
		}
		rec.AppliedFiles = append(rec.AppliedFiles, applied)
		log.Info(fmt.Sprintf("Applied %s to %s: %s", change.Operation, change.FilePath, applied.Status))
	}

	rec.Tally()
	done := e.now()
	rec.CompletedAt = &done

	log.Info("Application completed",
		"status", string(rec.Status),
		"success", rec.SuccessfulFiles,
		"failed", rec.FailedFiles,
		"skipped", rec.SkippedFiles)

	if e.Ledger != nil {
		// The record is still saved when the caller's context is gone.
		if err := e.Ledger.SaveApplication(context.WithoutCancel(ctx), rec); err != nil {
			log.Error("Failed to persist application", "error", err)
			return rec, fmt.Errorf("engine: persist application %s: %w", rec.ApplicationID, err)
		}
	}
	return rec, nil
}
