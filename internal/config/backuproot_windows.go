//go:build windows

package config

import (
	"os"
	"path/filepath"
)

// DefaultBackupRoot returns the Windows MobileSync backup directory.
func DefaultBackupRoot() string {
	return filepath.Join(os.Getenv("APPDATA"), "Apple Computer", "MobileSync", "Backup")
}
