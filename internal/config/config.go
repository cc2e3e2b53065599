package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/melih-ucgun/graft/internal/consts"
)

// Defaults are the apply/rollback option defaults a project can pin.
// Nil means "use the built-in default".
type Defaults struct {
	CreateBackup        *bool  `yaml:"create_backup"`
	OverwriteExisting   *bool  `yaml:"overwrite_existing"`
	CreateDirectories   *bool  `yaml:"create_directories"`
	UseDiffMode         *bool  `yaml:"use_diff_mode"`
	DeleteNewFiles      *bool  `yaml:"delete_new_files"`
	RestoreDeletedFiles *bool  `yaml:"restore_deleted_files"`
	TargetDirectory     string `yaml:"target_directory"`
}

type Config struct {
	Home        string   `yaml:"home"`
	BackupDir   string   `yaml:"backup_dir"`
	LedgerDir   string   `yaml:"ledger_dir"`
	ManifestDir string   `yaml:"manifest_dir"`
	LogLevel    string   `yaml:"log_level"`
	Defaults    Defaults `yaml:"defaults"`
}

// Load builds the effective configuration.
//
// Precedence, lowest first: built-in defaults, <home>/config.yaml, the .env
// file in the working directory, the process environment. home is the
// directory holding config.yaml; empty means GRAFT_HOME or ".graft". A
// "home" key inside config.yaml relocates the state directories.
func Load(home string) (*Config, error) {
	env, err := readEnv(consts.EnvFileName)
	if err != nil {
		return nil, err
	}
	if home == "" {
		home = env[consts.EnvHome]
	}
	if home == "" {
		home = consts.GetGraftDir()
	}

	cfg := &Config{Home: home, LogLevel: "info"}
	if err := cfg.readFile(consts.GetConfigFilePath(home)); err != nil {
		return nil, err
	}
	cfg.applyEnv(env)
	cfg.fillPaths()
	return cfg, nil
}

// LoadConfig reads a single YAML file without env overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %s: %w", path, err)
	}
	cfg := &Config{LogLevel: "info"}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: yaml parse error in %s: %w", path, err)
	}
	cfg.fillPaths()
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: cannot read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: yaml parse error in %s: %w", path, err)
	}
	return nil
}

// readEnv merges the .env file (if any) under the process environment.
func readEnv(file string) (map[string]string, error) {
	env := map[string]string{}
	if _, err := os.Stat(file); err == nil {
		fromFile, err := godotenv.Read(file)
		if err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", file, err)
		}
		env = fromFile
	}
	for _, key := range []string{consts.EnvHome, consts.EnvBackupDir, consts.EnvLedgerDir, consts.EnvManifestDir, consts.EnvLogLevel} {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			env[key] = v
		}
	}
	return env, nil
}

func (c *Config) applyEnv(env map[string]string) {
	if v := env[consts.EnvBackupDir]; v != "" {
		c.BackupDir = v
	}
	if v := env[consts.EnvLedgerDir]; v != "" {
		c.LedgerDir = v
	}
	if v := env[consts.EnvManifestDir]; v != "" {
		c.ManifestDir = v
	}
	if v := env[consts.EnvLogLevel]; v != "" {
		c.LogLevel = v
	}
}

func (c *Config) fillPaths() {
	if c.Home == "" {
		c.Home = consts.GetGraftDir()
	}
	if c.BackupDir == "" {
		c.BackupDir = consts.GetBackupDir(c.Home)
	}
	// Backup paths are stored in the ledger and must resolve from any cwd.
	if abs, err := filepath.Abs(c.BackupDir); err == nil {
		c.BackupDir = abs
	}
	if c.LedgerDir == "" {
		c.LedgerDir = consts.GetLedgerDir(c.Home)
	}
	if c.ManifestDir == "" {
		c.ManifestDir = consts.GetManifestDir(c.Home)
	}
}

// Bool resolves an optional default.
func Bool(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
