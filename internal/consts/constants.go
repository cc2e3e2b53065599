package consts

import (
	"path/filepath"
)

// Constants for configuration paths and defaults
const (
	DefaultDirName  = ".graft"
	ConfigFileName  = "config.yaml"
	EnvFileName     = ".env"
	BackupDirName   = "backups"
	LedgerDirName   = "ledger"
	ManifestDirName = "executions"
)

// Environment variables that override config file values.
const (
	EnvHome        = "GRAFT_HOME"
	EnvBackupDir   = "GRAFT_BACKUP_DIR"
	EnvLedgerDir   = "GRAFT_LEDGER_DIR"
	EnvManifestDir = "GRAFT_MANIFEST_DIR"
	EnvLogLevel    = "GRAFT_LOG_LEVEL"
)

// GetGraftDir returns the root directory name for graft state
func GetGraftDir() string {
	return DefaultDirName
}

// GetConfigFilePath returns the path to the config file under home
func GetConfigFilePath(home string) string {
	return filepath.Join(home, ConfigFileName)
}

// GetBackupDir returns where per-application backups are kept
func GetBackupDir(home string) string {
	return filepath.Join(home, BackupDirName)
}

// GetLedgerDir returns the badger directory of the ledger
func GetLedgerDir(home string) string {
	return filepath.Join(home, LedgerDirName)
}

// GetManifestDir returns where execution manifests are looked up
func GetManifestDir(home string) string {
	return filepath.Join(home, ManifestDirName)
}
