package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih-ucgun/graft/internal/core"
	"github.com/melih-ucgun/graft/internal/source"
	"github.com/melih-ucgun/graft/internal/state"
	"github.com/melih-ucgun/graft/internal/types"
)

// countingFS records how many filesystem calls went through it.
type countingFS struct {
	core.RealFS
	calls atomic.Int64
}

func (c *countingFS) Stat(name string) (fs.FileInfo, error) {
	c.calls.Add(1)
	return c.RealFS.Stat(name)
}

func (c *countingFS) ReadFile(name string) ([]byte, error) {
	c.calls.Add(1)
	return c.RealFS.ReadFile(name)
}

func (c *countingFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	c.calls.Add(1)
	return c.RealFS.WriteFile(name, data, perm)
}

func (c *countingFS) Remove(name string) error {
	c.calls.Add(1)
	return c.RealFS.Remove(name)
}

func (c *countingFS) Open(name string) (core.File, error) {
	c.calls.Add(1)
	return c.RealFS.Open(name)
}

type harness struct {
	engine    *Engine
	source    *source.MemorySource
	ledger    *state.Ledger
	fs        *countingFS
	target    string
	backupDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		source:    source.NewMemorySource(),
		fs:        &countingFS{},
		target:    filepath.Join(root, "target"),
		backupDir: filepath.Join(root, "backups"),
	}
	require.NoError(t, os.MkdirAll(h.target, 0755))

	ledger, err := state.OpenLedger(state.InMemoryStoreConfig())
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	h.ledger = ledger

	h.engine = NewEngine(h.source, ledger, state.NewBackupManager(h.backupDir, h.fs), core.NopLogger{})
	return h
}

func (h *harness) opts() ApplyOptions {
	o := DefaultApplyOptions()
	o.TargetDirectory = h.target
	return o
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(h.target, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func (h *harness) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.target, rel))
	require.NoError(t, err)
	return string(data)
}

func (h *harness) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(h.target, rel))
	return err == nil
}

func create(path, content string) types.GeneratedChange {
	return types.GeneratedChange{FilePath: path, Operation: types.OpCreate, Content: content, ContentType: types.ContentFull}
}

func modify(path, content string, ct types.ContentType) types.GeneratedChange {
	return types.GeneratedChange{FilePath: path, Operation: types.OpModify, Content: content, ContentType: ct}
}

func remove(path string) types.GeneratedChange {
	return types.GeneratedChange{FilePath: path, Operation: types.OpDelete}
}

func TestApply_CreateNewFile(t *testing.T) {
	h := newHarness(t)
	h.source.Put("exec", create("foo.txt", "hello"))

	rec, err := h.engine.Apply(context.Background(), "exec", h.opts())
	require.NoError(t, err)

	require.Len(t, rec.AppliedFiles, 1)
	f := rec.AppliedFiles[0]
	assert.Equal(t, types.StatusSuccess, f.Status)
	assert.Equal(t, int64(5), f.BytesWritten)
	assert.Equal(t, filepath.Join(h.target, "foo.txt"), f.AbsolutePath)
	assert.Equal(t, types.StrategyFull, f.Strategy)
	assert.False(t, f.Existed)
	assert.Empty(t, f.BackupPath)

	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Equal(t, 1, rec.TotalFiles)
	assert.Equal(t, 1, rec.SuccessfulFiles)
	assert.False(t, rec.CanRollback)
	assert.NotNil(t, rec.CompletedAt)
	assert.Equal(t, "hello", h.read(t, "foo.txt"))

	stored, err := h.ledger.GetApplication(context.Background(), rec.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, rec.Status, stored.Status)
	assert.Equal(t, rec.AppliedFiles, stored.AppliedFiles)
}

func TestApply_ModifyMissingFileFromDiff(t *testing.T) {
	h := newHarness(t)
	diffText := "--- a/missing.txt\n+++ b/missing.txt\n@@ -1,2 +1,3 @@\n line one\n-old\n+new two\n+new three\n"
	h.source.Put("exec", modify("missing.txt", diffText, types.ContentDiff))

	rec, err := h.engine.Apply(context.Background(), "exec", h.opts())
	require.NoError(t, err)

	f := rec.AppliedFiles[0]
	assert.Equal(t, types.StatusSuccess, f.Status)
	assert.Equal(t, types.StrategyExtracted, f.Strategy)
	assert.Equal(t, "new two\nnew three", h.read(t, "missing.txt"))
	assert.Empty(t, f.BackupPath)
}

func TestApply_ModifyMissingFileWithoutDiff(t *testing.T) {
	h := newHarness(t)
	h.source.Put("exec", modify("missing.txt", "content", types.ContentFull))

	rec, err := h.engine.Apply(context.Background(), "exec", h.opts())
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, rec.AppliedFiles[0].Status)
	assert.Equal(t, "file does not exist", rec.AppliedFiles[0].Error)
	assert.Equal(t, types.StatusFailed, rec.Status)
	assert.False(t, h.exists("missing.txt"))
}

func TestApply_DeleteAbsentFile(t *testing.T) {
	h := newHarness(t)
	h.source.Put("exec", remove("absent.txt"))

	rec, err := h.engine.Apply(context.Background(), "exec", h.opts())
	require.NoError(t, err)

	f := rec.AppliedFiles[0]
	assert.Equal(t, types.StatusSkipped, f.Status)
	assert.Equal(t, int64(0), f.BytesWritten)
	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Equal(t, 1, rec.SkippedFiles)
}

func TestApply_UnknownExecution(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Apply(context.Background(), "nope", h.opts())
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.Zero(t, h.fs.calls.Load())

	all, err := h.ledger.ListApplications(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestApply_ZeroChangesIsCompleted(t *testing.T) {
	h := newHarness(t)
	h.source.Put("empty")

	rec, err := h.engine.Apply(context.Background(), "empty", h.opts())
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Equal(t, 0, rec.TotalFiles)
	assert.False(t, rec.CanRollback)
}

func TestApply_CreateIdempotentWithoutOverwrite(t *testing.T) {
	h := newHarness(t)
	h.source.Put("exec", create("a.txt", "first"))
	opts := h.opts()
	opts.OverwriteExisting = false

	first, err := h.engine.Apply(context.Background(), "exec", opts)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, first.AppliedFiles[0].Status)

	h.source.Put("exec", create("a.txt", "second"))
	second, err := h.engine.Apply(context.Background(), "exec", opts)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSkipped, second.AppliedFiles[0].Status)
	assert.True(t, second.AppliedFiles[0].Existed)
	assert.Equal(t, "first", h.read(t, "a.txt"))
	assert.NotEqual(t, first.ApplicationID, second.ApplicationID)

	byExec, err := h.ledger.ListApplicationsByExecution(context.Background(), "exec")
	require.NoError(t, err)
	assert.Len(t, byExec, 2)
}

func TestApply_DryRunLeavesTreeUntouched(t *testing.T) {
	h := newHarness(t)
	h.write(t, "mod.txt", "line1\nline2\n")
	h.write(t, "del.txt", "bye\n")
	content := "héllo wörld"
	h.source.Put("exec",
		create("new/dir/file.txt", content),
		modify("mod.txt", "@@ -1,2 +1,2 @@\n line1\n-line2\n+line two\n", types.ContentDiff),
		remove("del.txt"),
	)
	opts := h.opts()
	opts.DryRun = true

	rec, err := h.engine.Apply(context.Background(), "exec", opts)
	require.NoError(t, err)
	assert.True(t, rec.DryRun)
	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.False(t, rec.CanRollback)

	created := rec.AppliedFiles[0]
	assert.Equal(t, int64(len(content)), created.BytesWritten)
	assert.Contains(t, created.Diff, "+"+content)

	modified := rec.AppliedFiles[1]
	assert.Equal(t, types.StrategyPatched, modified.Strategy)
	assert.Equal(t, int64(len("line1\nline two\n")), modified.BytesWritten)
	assert.Contains(t, modified.Diff, "-line2")
	assert.Contains(t, modified.Diff, "+line two")

	deleted := rec.AppliedFiles[2]
	assert.Equal(t, types.StatusSuccess, deleted.Status)
	assert.Empty(t, deleted.BackupPath)

	assert.False(t, h.exists("new"))
	assert.Equal(t, "line1\nline2\n", h.read(t, "mod.txt"))
	assert.Equal(t, "bye\n", h.read(t, "del.txt"))
	_, err = os.Stat(h.backupDir)
	assert.True(t, os.IsNotExist(err), "dry runs must not create backups")
}

func TestApply_ModifyPatchesExistingFile(t *testing.T) {
	h := newHarness(t)
	h.write(t, "main.go", "package main\n\nfunc main() {\n\tprintln(\"a\")\n}\n")
	diffText := "--- a/main.go\n+++ b/main.go\n@@ -3,3 +3,3 @@\n func main() {\n-\tprintln(\"a\")\n+\tprintln(\"b\")\n }\n"
	h.source.Put("exec", modify("main.go", diffText, types.ContentDiff))

	rec, err := h.engine.Apply(context.Background(), "exec", h.opts())
	require.NoError(t, err)

	f := rec.AppliedFiles[0]
	assert.Equal(t, types.StatusSuccess, f.Status)
	assert.Equal(t, types.StrategyPatched, f.Strategy)
	assert.True(t, f.Existed)
	assert.Equal(t, "package main\n\nfunc main() {\n\tprintln(\"b\")\n}\n", h.read(t, "main.go"))
	assert.Equal(t, filepath.Join(h.backupDir, rec.ApplicationID, "main.go"), f.BackupPath)
	assert.True(t, rec.CanRollback)
}

func TestApply_StaleDiffFallsBackToExtraction(t *testing.T) {
	h := newHarness(t)
	h.write(t, "f.txt", "completely\ndifferent\n")
	diffText := "@@ -1,2 +1,2 @@\n alpha\n-beta\n+gamma\n@@ -10,1 +10,2 @@\n omega\n+delta\n"
	h.source.Put("exec", modify("f.txt", diffText, types.ContentDiff))

	rec, err := h.engine.Apply(context.Background(), "exec", h.opts())
	require.NoError(t, err)

	f := rec.AppliedFiles[0]
	assert.Equal(t, types.StatusSuccess, f.Status)
	assert.Equal(t, types.StrategyExtracted, f.Strategy)
	assert.Equal(t, "gamma\ndelta", h.read(t, "f.txt"))
}

func TestApply_MultiFileDiffFails(t *testing.T) {
	h := newHarness(t)
	h.write(t, "f", "x\ny\n")
	diffText := "--- a/f\n+++ b/f\n@@ -1,2 +1,2 @@\n x\n-y\n+Y\n--- a/g\n+++ b/g\n@@ -1 +1 @@\n-q\n+Q\n"
	h.source.Put("exec", modify("f", diffText, types.ContentDiff))

	rec, err := h.engine.Apply(context.Background(), "exec", h.opts())
	require.NoError(t, err)

	f := rec.AppliedFiles[0]
	assert.Equal(t, types.StatusFailed, f.Status)
	assert.Contains(t, f.Error, "error applying diff")
	assert.Equal(t, "x\ny\n", h.read(t, "f"))
}

func TestApply_CRLFFileKeepsLineEndings(t *testing.T) {
	h := newHarness(t)
	h.write(t, "win.txt", "a\r\nb\r\nc\r\n")
	h.source.Put("exec", modify("win.txt", "@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n", types.ContentDiff))

	rec, err := h.engine.Apply(context.Background(), "exec", h.opts())
	require.NoError(t, err)

	f := rec.AppliedFiles[0]
	assert.Equal(t, types.StatusSuccess, f.Status)
	assert.Equal(t, types.StrategyPatched, f.Strategy)
	assert.Equal(t, "a\r\nB\r\nc\r\n", h.read(t, "win.txt"))
}

func TestApply_DiffModeOffWritesVerbatimWithWarning(t *testing.T) {
	h := newHarness(t)
	h.write(t, "f.txt", "a\n")
	diffText := "@@ -1,1 +1,1 @@\n-a\n+b\n"
	h.source.Put("exec", modify("f.txt", diffText, types.ContentDiff))
	opts := h.opts()
	opts.UseDiffMode = false

	rec, err := h.engine.Apply(context.Background(), "exec", opts)
	require.NoError(t, err)

	f := rec.AppliedFiles[0]
	assert.Equal(t, types.StatusSuccess, f.Status)
	assert.Equal(t, types.StrategyFull, f.Strategy)
	assert.NotEmpty(t, f.Warning)
	assert.Equal(t, diffText, h.read(t, "f.txt"))
}

func TestApply_PathEscapeFails(t *testing.T) {
	h := newHarness(t)
	h.source.Put("exec",
		create("../outside.txt", "x"),
		create("/etc/graft-test", "x"),
		create("ok.txt", "x"),
	)

	rec, err := h.engine.Apply(context.Background(), "exec", h.opts())
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, rec.AppliedFiles[0].Status)
	assert.Contains(t, rec.AppliedFiles[0].Error, "escapes")
	assert.Equal(t, types.StatusFailed, rec.AppliedFiles[1].Status)
	assert.Equal(t, types.StatusSuccess, rec.AppliedFiles[2].Status)
	assert.Equal(t, types.StatusPartiallyCompleted, rec.Status)

	_, err = os.Stat(filepath.Join(filepath.Dir(h.target), "outside.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestApply_FailureDoesNotAbortBatch(t *testing.T) {
	h := newHarness(t)
	h.source.Put("exec",
		modify("missing.txt", "x", types.ContentFull),
		create("nested/a.txt", "a"),
	)
	opts := h.opts()
	opts.CreateDirectories = false

	rec, err := h.engine.Apply(context.Background(), "exec", opts)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, rec.AppliedFiles[0].Status)
	assert.Equal(t, types.StatusFailed, rec.AppliedFiles[1].Status, "parent dir missing without CreateDirectories")
	assert.Equal(t, types.StatusFailed, rec.Status)
	assert.Equal(t, 2, rec.FailedFiles)
}

func TestApply_FileFilterAndWhen(t *testing.T) {
	h := newHarness(t)
	h.source.Put("exec",
		create("a.go", "a"),
		create("b.go", "b"),
		create("c.txt", "c"),
	)

	opts := h.opts()
	opts.FileFilter = []string{"b.go", "c.txt"}
	opts.When = `ext == ".go"`

	rec, err := h.engine.Apply(context.Background(), "exec", opts)
	require.NoError(t, err)
	require.Len(t, rec.AppliedFiles, 1)
	assert.Equal(t, "b.go", rec.AppliedFiles[0].FilePath)
	assert.False(t, h.exists("a.go"))
	assert.False(t, h.exists("c.txt"))
}

func TestApply_InvalidWhen(t *testing.T) {
	h := newHarness(t)
	h.source.Put("exec", create("a.go", "a"))
	opts := h.opts()
	opts.When = `ext ==`

	_, err := h.engine.Apply(context.Background(), "exec", opts)
	assert.Error(t, err)
	assert.False(t, h.exists("a.go"))
}

func TestApply_CancelledContextStopsBetweenChanges(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := h.engine.ApplyChanges(ctx, "exec", []types.GeneratedChange{create("a.txt", "a")}, h.opts())
	require.NoError(t, err)
	assert.Empty(t, rec.AppliedFiles)
	assert.False(t, h.exists("a.txt"))

	_, err = h.ledger.GetApplication(context.Background(), rec.ApplicationID)
	assert.NoError(t, err, "interrupted runs are still recorded")
}
