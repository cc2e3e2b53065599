package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/melih-ucgun/graft/internal/types"
)

// Rollback reverses the recorded application applicationID from its backups.
// It fails before touching any file when the application is unknown or took
// no backups. Backups are left in place, so a rollback may be repeated.
func (e *Engine) Rollback(ctx context.Context, applicationID string, opts RollbackOptions) (*types.RollbackRecord, error) {
	if e.Ledger == nil {
		return nil, errors.New("engine: no ledger configured")
	}
	app, err := e.Ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("engine: rollback: %w", err)
	}
	if !app.CanRollback {
		return nil, fmt.Errorf("engine: application %s: %w", applicationID, types.ErrCannotRollback)
	}

	rec := &types.RollbackRecord{
		RollbackID:    e.newID(),
		ApplicationID: applicationID,
		Status:        types.StatusPending,
		FilesRestored: []string{},
		FilesDeleted:  []string{},
		StartedAt:     e.now(),
		DryRun:        opts.DryRun,
	}
	log := e.Logger.With("rollback", rec.RollbackID, "application", applicationID)

	rec.Status = types.StatusInProgress
	log.Info("Starting rollback", "dry_run", opts.DryRun)

	allow := allowSet(opts.FileFilter)
	files := make([]types.AppliedFile, 0, len(app.AppliedFiles))
	for _, f := range app.AppliedFiles {
		if allow == nil || allow[f.FilePath] {
			files = append(files, f)
		}
	}
	rec.TotalFiles = len(files)

	var errs []error
	for _, f := range files {
		if ctx.Err() != nil {
			log.Warn("Rollback interrupted")
			errs = append(errs, ctx.Err())
			break
		}
		action, err := e.revert(f, opts)
		switch {
		case err != nil:
			rec.FailedFiles++
			errs = append(errs, fmt.Errorf("%s: %w", f.FilePath, err))
			log.Error(fmt.Sprintf("Failed to rollback %s", f.FilePath), "error", err)
		case action == revertRestored:
			rec.SuccessfulFiles++
			rec.FilesRestored = append(rec.FilesRestored, f.FilePath)
		case action == revertDeleted:
			rec.SuccessfulFiles++
			rec.FilesDeleted = append(rec.FilesDeleted, f.FilePath)
		}
	}

	rec.Status = types.DeriveStatus(rec.SuccessfulFiles, rec.FailedFiles)
	if len(errs) > 0 {
		rec.Error = errors.Join(errs...).Error()
	}
	done := e.now()
	rec.CompletedAt = &done

	log.Info(fmt.Sprintf("Rollback completed: %d success, %d failed", rec.SuccessfulFiles, rec.FailedFiles),
		"status", string(rec.Status))

	if err := e.Ledger.SaveRollback(context.WithoutCancel(ctx), rec); err != nil {
		log.Error("Failed to persist rollback", "error", err)
		return rec, fmt.Errorf("engine: persist rollback %s: %w", rec.RollbackID, err)
	}
	return rec, nil
}

type revertAction int

const (
	revertNone revertAction = iota
	revertRestored
	revertDeleted
)

func (e *Engine) revert(f types.AppliedFile, opts RollbackOptions) (revertAction, error) {
	switch f.Operation {
	case types.OpCreate:
		// Only files this application brought into existence are removed.
		// An overwritten file has no backup and deleting it would lose data.
		if !opts.DeleteNewFiles || f.Status != types.StatusSuccess || f.Existed {
			return revertNone, nil
		}
		if !opts.DryRun {
			if err := e.FS.Remove(f.AbsolutePath); err != nil {
				return revertNone, fmt.Errorf("%w: remove %s: %v", types.ErrIO, f.AbsolutePath, err)
			}
		}
		return revertDeleted, nil

	case types.OpModify:
		if f.BackupPath == "" {
			return revertNone, nil
		}
		return e.restore(f, opts)

	case types.OpDelete:
		if f.BackupPath == "" || !opts.RestoreDeletedFiles {
			return revertNone, nil
		}
		return e.restore(f, opts)
	}
	return revertNone, nil
}

func (e *Engine) restore(f types.AppliedFile, opts RollbackOptions) (revertAction, error) {
	if e.Backups == nil {
		return revertNone, errors.New("no backup manager configured")
	}
	if opts.DryRun {
		if !e.Backups.Exists(f.BackupPath) {
			return revertNone, fmt.Errorf("backup: %w: %s", types.ErrNotFound, f.BackupPath)
		}
		return revertRestored, nil
	}
	if err := e.Backups.RestoreBackup(f.BackupPath, f.AbsolutePath); err != nil {
		return revertNone, err
	}
	return revertRestored, nil
}
