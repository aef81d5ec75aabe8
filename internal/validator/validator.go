// Package validator verifies a selected backup is complete and usable
// before the rest of the pipeline touches it, per SPEC_FULL.md section 4.3
// (spec.md section 4.3, unchanged).
package validator

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rosevale/vmxtract/internal/errs"
	"github.com/rosevale/vmxtract/internal/logging"
	"github.com/rosevale/vmxtract/internal/model"
	"github.com/rosevale/vmxtract/internal/plist"
)

const minOSMajorVersion = 7

// Validate checks that desc's on-disk backup is structurally sound enough
// to proceed. Encryption is checked first and rejects immediately; all
// other problems are reported as BackupCorrupt. Age warnings are logged
// only and never fail the run.
func Validate(desc model.BackupDescriptor, log *logging.Logger) error {
	if desc.Encrypted {
		return errs.New(errs.BackupEncrypted, "backup is encrypted; key-derived decryption is out of scope").
			WithSuggestion("disable backup encryption in the device's backup settings and re-run the sync")
	}

	required := []string{"Info.plist", "Manifest.plist", "Manifest.db"}
	for _, name := range required {
		path := filepath.Join(desc.RootPath, name)
		if _, err := os.Stat(path); err != nil {
			return errs.Wrap(errs.BackupCorrupt, err, "missing required backup file "+name).
				WithSuggestion("recreate the backup with the device's sync client")
		}
	}

	if err := checkManifestDB(desc.RootPath); err != nil {
		return err
	}

	if err := checkOSVersion(desc.OSVersion, log); err != nil {
		return err
	}

	if err := checkStatusPlist(desc.RootPath); err != nil {
		return err
	}

	warnIfStale(desc.LastBackupAt, log)

	return nil
}

func checkManifestDB(root string) error {
	dbPath := filepath.Join(root, "Manifest.db")
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return errs.Wrap(errs.BackupCorrupt, err, "cannot open Manifest.db").
			WithSuggestion("recreate the backup with the device's sync client")
	}
	defer db.Close()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM Files`).Scan(&count); err != nil {
		return errs.Wrap(errs.BackupCorrupt, err, "Manifest.db has no readable Files table").
			WithSuggestion("recreate the backup with the device's sync client")
	}
	if count == 0 {
		return errs.New(errs.BackupCorrupt, "Manifest.db's Files table is empty").
			WithSuggestion("recreate the backup with the device's sync client")
	}
	return nil
}

func checkOSVersion(version string, log *logging.Logger) error {
	major := firstVersionComponent(version)
	if major < 0 {
		if log != nil {
			log.Warn("backup OS version unparseable, skipping minimum-version check", map[string]interface{}{
				"version": version,
			})
		}
		return nil
	}
	if major < minOSMajorVersion {
		return errs.Newf(errs.BackupCorrupt, "backup OS version %s is below the minimum supported major version %d", version, minOSMajorVersion)
	}
	return nil
}

func firstVersionComponent(version string) int {
	parts := strings.SplitN(version, ".", 2)
	if len(parts) == 0 {
		return -1
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return -1
	}
	return n
}

func checkStatusPlist(root string) error {
	path := filepath.Join(root, "Status.plist")
	if _, err := os.Stat(path); err != nil {
		return nil // optional
	}
	if _, err := plist.ParseFile(path); err != nil {
		return errs.Wrap(errs.BackupCorrupt, err, "Status.plist is not a well-formed property list").
			WithSuggestion("recreate the backup with the device's sync client")
	}
	return nil
}

func warnIfStale(lastBackup time.Time, log *logging.Logger) {
	if log == nil || lastBackup.IsZero() {
		return
	}
	age := time.Since(lastBackup)
	fields := map[string]interface{}{"last_backup_at": lastBackup.Format(time.RFC3339), "age": age.String()}
	switch {
	case age > 90*24*time.Hour:
		log.Warn(fmt.Sprintf("backup is %s old, more than 90 days", age.Round(time.Hour)), fields)
	case age > 30*24*time.Hour:
		log.Warn(fmt.Sprintf("backup is %s old, more than 30 days", age.Round(time.Hour)), fields)
	case age > 7*24*time.Hour:
		log.Info(fmt.Sprintf("backup is %s old, more than 7 days", age.Round(time.Hour)), fields)
	}
}
