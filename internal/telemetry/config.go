package telemetry

import (
	"path/filepath"

	"codeberg.org/mutker/housemon/internal/errors"
)

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/housemon/telemetry.db"
	backupDirName  = "backups"
)

type Config struct {
	Enabled bool
	DBPath  string
	// BackupDir receives a copy of the database before an incompatible
	// schema is replaced. Defaults to "backups" next to DBPath.
	BackupDir string
}

func DefaultConfig() Config {
	return Config{
		DBPath:  defaultDBPath,
		Enabled: false,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if telemetry is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), backupDirName)
}
