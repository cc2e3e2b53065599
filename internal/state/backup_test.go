package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih-ucgun/graft/internal/types"
)

func TestBackupManager(t *testing.T) {
	tmpDir := t.TempDir()
	bm := NewBackupManager(filepath.Join(tmpDir, "backups"), nil)

	// Create a dummy file to back up
	srcFile := filepath.Join(tmpDir, "src", "pkg", "source.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(srcFile), 0755))
	content := []byte("original content")
	require.NoError(t, os.WriteFile(srcFile, content, 0640))

	// 1. CreateBackup mirrors the relative path under the application id
	backupPath, err := bm.CreateBackup(srcFile, "app1", "pkg/source.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "backups", "app1", "pkg", "source.txt"), backupPath)
	assert.True(t, bm.Exists(backupPath))

	info, err := os.Stat(backupPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())

	// 2. RestoreBackup after modification
	require.NoError(t, os.WriteFile(srcFile, []byte("modified content"), 0644))
	require.NoError(t, bm.RestoreBackup(backupPath, srcFile))

	restored, err := os.ReadFile(srcFile)
	require.NoError(t, err)
	assert.Equal(t, content, restored)

	// 3. Restore recreates a deleted parent tree
	require.NoError(t, os.RemoveAll(filepath.Join(tmpDir, "src")))
	require.NoError(t, bm.RestoreBackup(backupPath, srcFile))
	restored, err = os.ReadFile(srcFile)
	require.NoError(t, err)
	assert.Equal(t, content, restored)
}

func TestBackupManager_MissingSource(t *testing.T) {
	tmpDir := t.TempDir()
	bm := NewBackupManager(filepath.Join(tmpDir, "backups"), nil)

	path, err := bm.CreateBackup(filepath.Join(tmpDir, "doesnotexist"), "app1", "doesnotexist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrIO))
	assert.Empty(t, path)

	_, statErr := os.Stat(filepath.Join(tmpDir, "backups"))
	assert.True(t, os.IsNotExist(statErr), "no backup tree should be created")
}

func TestBackupManager_RejectsEscapingPath(t *testing.T) {
	tmpDir := t.TempDir()
	bm := NewBackupManager(filepath.Join(tmpDir, "backups"), nil)
	src := filepath.Join(tmpDir, "f.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))

	_, err := bm.CreateBackup(src, "app1", "../../f.txt")
	assert.Error(t, err)
}

func TestBackupManager_RestoreMissingBackup(t *testing.T) {
	tmpDir := t.TempDir()
	bm := NewBackupManager(filepath.Join(tmpDir, "backups"), nil)

	err := bm.RestoreBackup(filepath.Join(tmpDir, "backups", "nope"), filepath.Join(tmpDir, "target"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.False(t, bm.Exists(""))
}
