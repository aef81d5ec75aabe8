package validator

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	applist "howett.net/plist"

	"github.com/rosevale/vmxtract/internal/model"
)

func writeManifestDB(t *testing.T, path string, rowCount int) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open manifest db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE Files (fileID TEXT, domain TEXT, relativePath TEXT, file BLOB)`); err != nil {
		t.Fatalf("failed to create Files table: %v", err)
	}
	for i := 0; i < rowCount; i++ {
		if _, err := db.Exec(`INSERT INTO Files (fileID, domain, relativePath) VALUES (?, ?, ?)`, "id", "HomeDomain", "path"); err != nil {
			t.Fatalf("failed to insert row: %v", err)
		}
	}
}

func validBackupDir(t *testing.T, rowCount int) string {
	t.Helper()
	root := t.TempDir()
	f, err := os.Create(filepath.Join(root, "Info.plist"))
	if err != nil {
		t.Fatal(err)
	}
	applist.NewEncoder(f).Encode(map[string]interface{}{"Device Name": "iPhone"})
	f.Close()

	f2, err := os.Create(filepath.Join(root, "Manifest.plist"))
	if err != nil {
		t.Fatal(err)
	}
	applist.NewEncoder(f2).Encode(map[string]interface{}{"IsEncrypted": false})
	f2.Close()

	writeManifestDB(t, filepath.Join(root, "Manifest.db"), rowCount)
	return root
}

func TestValidateHappyPath(t *testing.T) {
	root := validBackupDir(t, 3)
	desc := model.BackupDescriptor{RootPath: root, OSVersion: "17.4", LastBackupAt: time.Now()}

	if err := Validate(desc, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsEncrypted(t *testing.T) {
	root := validBackupDir(t, 3)
	desc := model.BackupDescriptor{RootPath: root, OSVersion: "17.4", Encrypted: true}

	err := Validate(desc, nil)
	if err == nil {
		t.Fatal("expected encryption error")
	}
}

func TestValidateRejectsMissingFile(t *testing.T) {
	root := t.TempDir()
	desc := model.BackupDescriptor{RootPath: root, OSVersion: "17.4"}

	err := Validate(desc, nil)
	if err == nil {
		t.Fatal("expected error for missing required files")
	}
}

func TestValidateRejectsEmptyFilesTable(t *testing.T) {
	root := validBackupDir(t, 0)
	desc := model.BackupDescriptor{RootPath: root, OSVersion: "17.4"}

	err := Validate(desc, nil)
	if err == nil {
		t.Fatal("expected error for empty Files table")
	}
}

func TestValidateRejectsOldOSVersion(t *testing.T) {
	root := validBackupDir(t, 1)
	desc := model.BackupDescriptor{RootPath: root, OSVersion: "6.1"}

	err := Validate(desc, nil)
	if err == nil {
		t.Fatal("expected error for below-minimum OS version")
	}
}

func TestValidateSkipsUnparsableOSVersion(t *testing.T) {
	root := validBackupDir(t, 1)
	desc := model.BackupDescriptor{RootPath: root, OSVersion: "not-a-version"}

	if err := Validate(desc, nil); err != nil {
		t.Fatalf("unparsable OS version should not fail validation: %v", err)
	}
}

func TestValidateRejectsCorruptStatusPlist(t *testing.T) {
	root := validBackupDir(t, 1)
	if err := os.WriteFile(filepath.Join(root, "Status.plist"), []byte("not a plist"), 0644); err != nil {
		t.Fatal(err)
	}
	desc := model.BackupDescriptor{RootPath: root, OSVersion: "17.4"}

	err := Validate(desc, nil)
	if err == nil {
		t.Fatal("expected error for corrupt Status.plist")
	}
}
