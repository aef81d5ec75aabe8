//go:build darwin

package config

import (
	"os"
	"path/filepath"
)

// DefaultBackupRoot returns the macOS MobileSync backup directory.
func DefaultBackupRoot() string {
	return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "MobileSync", "Backup")
}
