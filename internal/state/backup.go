package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/melih-ucgun/graft/internal/core"
	"github.com/melih-ucgun/graft/internal/types"
)

// BackupManager handles creating copies of files before modification.
// Backups live at BaseDir/<applicationID>/<relative path>, so every
// application owns a disjoint subtree.
type BackupManager struct {
	BaseDir string
	FS      core.FileSystem
}

func NewBackupManager(baseDir string, fsys core.FileSystem) *BackupManager {
	if fsys == nil {
		fsys = &core.RealFS{}
	}
	return &BackupManager{BaseDir: baseDir, FS: fsys}
}

// Path returns where the backup of relativePath for applicationID is stored.
func (bm *BackupManager) Path(applicationID, relativePath string) string {
	return filepath.Join(bm.BaseDir, applicationID, filepath.FromSlash(relativePath))
}

// CreateBackup copies the bytes at absolutePath into the backup tree of applicationID.
// Returns the path to the backup file.
func (bm *BackupManager) CreateBackup(absolutePath, applicationID, relativePath string) (string, error) {
	if applicationID == "" {
		return "", fmt.Errorf("backup: application id is required")
	}
	clean := filepath.Clean(filepath.FromSlash(relativePath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("backup: relative path %q escapes the backup tree", relativePath)
	}

	info, err := bm.FS.Stat(absolutePath)
	if err != nil {
		return "", fmt.Errorf("backup: %w: stat %s: %v", types.ErrIO, absolutePath, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("backup: source '%s' is a directory, not supported", absolutePath)
	}

	backupPath := bm.Path(applicationID, clean)
	if err := bm.FS.MkdirAll(filepath.Dir(backupPath), 0755); err != nil {
		return "", fmt.Errorf("backup: %w: create backup dir: %v", types.ErrIO, err)
	}

	if err := core.CopyFile(bm.FS, absolutePath, backupPath, info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("backup: %w: copy %s: %v", types.ErrIO, absolutePath, err)
	}

	return backupPath, nil
}

// RestoreBackup copies the backup file back to the target destination,
// recreating parent directories if the original tree was removed.
func (bm *BackupManager) RestoreBackup(backupPath, targetPath string) error {
	info, err := bm.FS.Stat(backupPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("backup: %w: %s", types.ErrNotFound, backupPath)
	}
	if err != nil {
		return fmt.Errorf("backup: %w: stat %s: %v", types.ErrIO, backupPath, err)
	}

	if err := bm.FS.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("backup: %w: %v", types.ErrIO, err)
	}

	if err := core.CopyFile(bm.FS, backupPath, targetPath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("backup: %w: restore %s: %v", types.ErrIO, targetPath, err)
	}
	return nil
}

// Exists reports whether a backup file is present.
func (bm *BackupManager) Exists(backupPath string) bool {
	return backupPath != "" && core.Exists(bm.FS, backupPath)
}
