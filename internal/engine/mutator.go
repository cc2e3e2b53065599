package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/melih-ucgun/graft/internal/core"
	"github.com/melih-ucgun/graft/internal/patch"
	"github.com/melih-ucgun/graft/internal/state"
	"github.com/melih-ucgun/graft/internal/types"
)

// ErrPathTraversal is returned when a change targets a path outside the target directory.
var ErrPathTraversal = errors.New("path escapes target directory")

const defaultFileMode os.FileMode = 0644

// mutation carries everything one change needs through the pipeline.
// Handlers read and write it; nothing about a change lives on the Mutator.
type mutation struct {
	change        types.GeneratedChange
	opts          ApplyOptions
	applicationID string
	log           core.Logger

	stage   Stage
	exists  bool
	mode    os.FileMode
	current *string
	content string

	result types.AppliedFile
}

func newMutation(change types.GeneratedChange, applicationID string, opts ApplyOptions, log core.Logger) *mutation {
	return &mutation{
		change:        change,
		opts:          opts,
		applicationID: applicationID,
		log:           log.With("file", change.FilePath, "op", string(change.Operation)),
		stage:         StageNotStarted,
		mode:          defaultFileMode,
		result: types.AppliedFile{
			FilePath:  change.FilePath,
			Operation: change.Operation,
			Status:    types.StatusPending,
		},
	}
}

func (m *mutation) enter(next Stage) error {
	if !m.stage.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.stage, next)
	}
	m.stage = next
	return nil
}

// Mutator applies a single GeneratedChange to the filesystem.
type Mutator struct {
	FS      core.FileSystem
	Backups *state.BackupManager
	Logger  core.Logger
}

// NewMutator wires a Mutator. A nil fsys uses the real filesystem; a nil
// backups disables backups regardless of ApplyOptions.CreateBackup.
func NewMutator(fsys core.FileSystem, backups *state.BackupManager, logger core.Logger) *Mutator {
	if fsys == nil {
		fsys = &core.RealFS{}
	}
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Mutator{FS: fsys, Backups: backups, Logger: logger}
}

// Mutate runs change through the pipeline and returns its outcome.
// It never returns an error: every failure is recorded on the AppliedFile.
func (mu *Mutator) Mutate(change types.GeneratedChange, applicationID string, opts ApplyOptions) types.AppliedFile {
	m := newMutation(change, applicationID, opts, mu.Logger)
	mu.run(m)

	if err := m.enter(StageDone); err != nil {
		// A handler returned without reaching an outcome stage.
		m.result.Status = types.StatusFailed
		m.result.Error = err.Error()
	}
	return m.result
}

func (mu *Mutator) run(m *mutation) {
	abs, err := ResolvePath(m.opts.TargetDirectory, m.change.FilePath)
	if err != nil {
		mu.fail(m, err)
		return
	}
	m.result.AbsolutePath = abs

	info, err := mu.FS.Stat(abs)
	switch {
	case err == nil:
		if info.IsDir() {
			mu.fail(m, fmt.Errorf("%s is a directory", m.change.FilePath))
			return
		}
		m.exists = true
		m.mode = info.Mode().Perm()
	case os.IsNotExist(err):
	default:
		mu.fail(m, fmt.Errorf("%w: stat %s: %v", types.ErrIO, abs, err))
		return
	}
	m.result.Existed = m.exists

	switch m.change.Operation {
	case types.OpCreate:
		mu.create(m)
	case types.OpModify:
		mu.modify(m)
	case types.OpDelete:
		mu.remove(m)
	default:
		mu.fail(m, fmt.Errorf("unsupported operation %q", m.change.Operation))
	}
}

func (mu *Mutator) create(m *mutation) {
	if m.exists && !m.opts.OverwriteExisting {
		mu.skip(m, "file already exists and overwrite is disabled")
		return
	}
	m.content = m.change.Content
	m.result.Strategy = types.StrategyFull
	mu.write(m)
}

func (mu *Mutator) modify(m *mutation) {
	diffMode := m.change.IsDiff() && m.opts.UseDiffMode

	if !m.exists {
		if !diffMode {
			mu.fail(m, errors.New("file does not exist"))
			return
		}
		m.log.Info("File does not exist, creating from diff content")
		content, err := patch.ExtractAddedLines(m.change.Content)
		if err != nil {
			mu.fail(m, fmt.Errorf("failed to extract content from diff: %w", err))
			return
		}
		m.content = content
		m.result.Strategy = types.StrategyExtracted
		mu.write(m)
		return
	}

	if err := mu.backup(m); err != nil {
		mu.fail(m, err)
		return
	}

	if !diffMode {
		if !m.opts.UseDiffMode && (m.change.IsDiff() || patch.LooksLikeDiff(m.change.Content)) {
			m.result.Warning = "diff mode disabled, diff content written verbatim"
			m.log.Warn("Diff mode disabled, treating content as full file")
		}
		m.content = m.change.Content
		m.result.Strategy = types.StrategyFull
		mu.write(m)
		return
	}

	current, err := mu.readCurrent(m)
	if err != nil {
		mu.fail(m, err)
		return
	}
	res, err := patch.Resolve(current, m.change.Content)
	if err != nil {
		mu.fail(m, fmt.Errorf("error applying diff: %w", err))
		return
	}
	if res.Cause != nil {
		m.log.Warn("Patch failed, falling back to added-line extraction", "error", res.Cause)
		m.result.Strategy = types.StrategyExtracted
	} else {
		m.log.Debug("Patch applied", "hunks", res.Hunks)
		m.result.Strategy = types.StrategyPatched
	}
	m.content = res.Content
	mu.write(m)
}

func (mu *Mutator) remove(m *mutation) {
	if !m.exists {
		mu.skip(m, "file does not exist")
		return
	}
	if err := mu.backup(m); err != nil {
		mu.fail(m, err)
		return
	}

	if m.opts.DryRun {
		if current, err := mu.readCurrent(m); err == nil {
			m.result.Diff = core.GenerateDiff(m.change.FilePath, current, "")
		}
	} else if err := mu.FS.Remove(m.result.AbsolutePath); err != nil {
		mu.fail(m, fmt.Errorf("%w: remove %s: %v", types.ErrIO, m.result.AbsolutePath, err))
		return
	}

	if err := m.enter(StageDeleted); err != nil {
		mu.fail(m, err)
		return
	}
	m.result.Status = types.StatusSuccess
}

// backup snapshots a pre-existing file. A failed backup is logged and the
// change proceeds without a BackupPath; only an illegal transition is returned.
// A path touched twice in one application keeps its first snapshot, which
// holds the pre-application bytes.
func (mu *Mutator) backup(m *mutation) error {
	if !m.exists || !m.opts.CreateBackup || m.opts.DryRun || mu.Backups == nil {
		return nil
	}
	path := mu.Backups.Path(m.applicationID, m.change.FilePath)
	if mu.Backups.Exists(path) {
		m.log.Debug("Reusing backup taken earlier in this application", "path", path)
	} else {
		created, err := mu.Backups.CreateBackup(m.result.AbsolutePath, m.applicationID, m.change.FilePath)
		if err != nil {
			m.log.Error("Failed to create backup", "error", err)
			return nil
		}
		path = created
	}
	if err := m.enter(StageBackedUp); err != nil {
		return err
	}
	m.result.BackupPath = path
	m.log.Debug("Backup created", "path", path)
	return nil
}

func (mu *Mutator) write(m *mutation) {
	abs := m.result.AbsolutePath

	if m.opts.DryRun {
		current := ""
		if m.exists {
			current, _ = mu.readCurrent(m)
		}
		m.result.Diff = core.GenerateDiff(m.change.FilePath, current, m.content)
		m.result.BytesWritten = int64(len(m.content))
	} else {
		if m.opts.CreateDirectories {
			if err := mu.FS.MkdirAll(filepath.Dir(abs), 0755); err != nil {
				mu.fail(m, fmt.Errorf("%w: create parent dirs: %v", types.ErrIO, err))
				return
			}
		}
		if err := mu.FS.WriteFile(abs, []byte(m.content), m.mode); err != nil {
			mu.fail(m, fmt.Errorf("%w: write %s: %v", types.ErrIO, abs, err))
			return
		}
		m.result.BytesWritten = int64(len(m.content))
		if info, err := mu.FS.Stat(abs); err == nil {
			m.result.BytesWritten = info.Size()
		}
	}

	if err := m.enter(StageWritten); err != nil {
		mu.fail(m, err)
		return
	}
	m.result.Status = types.StatusSuccess
}

func (mu *Mutator) readCurrent(m *mutation) (string, error) {
	if m.current != nil {
		return *m.current, nil
	}
	data, err := mu.FS.ReadFile(m.result.AbsolutePath)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", types.ErrIO, m.result.AbsolutePath, err)
	}
	s := string(data)
	m.current = &s
	return s, nil
}

func (mu *Mutator) skip(m *mutation, reason string) {
	if err := m.enter(StageSkipped); err != nil {
		mu.fail(m, err)
		return
	}
	m.result.Status = types.StatusSkipped
	m.result.Warning = reason
	m.log.Debug("Skipped", "reason", reason)
}

func (mu *Mutator) fail(m *mutation, err error) {
	// Failed is reachable from every non-terminal stage; a terminal stage
	// that fails again keeps its stage and only records the error.
	_ = m.enter(StageFailed)
	m.result.Status = types.StatusFailed
	m.result.Error = err.Error()
	m.log.Error("Change failed", "error", err)
}

// ResolvePath joins rel onto root and rejects anything that is absolute or
// would land outside root.
func ResolvePath(root, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", errors.New("empty file path")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %s is absolute", ErrPathTraversal, rel)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve target directory: %w", err)
	}
	target := filepath.Join(absRoot, filepath.FromSlash(rel))

	r, err := filepath.Rel(absRoot, target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathTraversal, err)
	}
	if r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}
	return target, nil
}
