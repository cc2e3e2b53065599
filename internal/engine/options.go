package engine

// ApplyOptions controls one Apply run.
type ApplyOptions struct {
	// TargetDirectory is the root every GeneratedChange.FilePath is resolved against.
	TargetDirectory string
	// FileFilter, when non-empty, restricts the run to these relative paths.
	FileFilter []string
	// When is an optional expression evaluated per change; false drops the change.
	When string

	DryRun            bool
	CreateBackup      bool
	OverwriteExisting bool
	CreateDirectories bool
	UseDiffMode       bool
}

// DefaultApplyOptions returns the options used when the caller sets nothing:
// everything on except DryRun.
func DefaultApplyOptions() ApplyOptions {
	return ApplyOptions{
		CreateBackup:      true,
		OverwriteExisting: true,
		CreateDirectories: true,
		UseDiffMode:       true,
	}
}

// RollbackOptions controls one Rollback run.
type RollbackOptions struct {
	FileFilter          []string
	DeleteNewFiles      bool
	RestoreDeletedFiles bool
	DryRun              bool
}

func DefaultRollbackOptions() RollbackOptions {
	return RollbackOptions{
		DeleteNewFiles:      true,
		RestoreDeletedFiles: true,
	}
}

func allowSet(paths []string) map[string]bool {
	if len(paths) == 0 {
		return nil
	}
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set
}
