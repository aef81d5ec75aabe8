package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	applist "howett.net/plist"
)

const (
	udidA = "0123456789abcdef0123456789abcdef01234567"
	udidB = "fedcba9876543210fedcba9876543210fedcba98"
)

func writePlist(t *testing.T, path string, v interface{}) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	enc := applist.NewEncoder(f)
	if err := enc.Encode(v); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

func makeBackupDir(t *testing.T, root, udid string, encrypted bool, lastBackup time.Time) {
	t.Helper()
	dir := filepath.Join(root, udid)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create backup dir: %v", err)
	}
	writePlist(t, filepath.Join(dir, "Info.plist"), map[string]interface{}{
		"Device Name":       "iPhone",
		"Product Type":      "iPhone14,2",
		"Product Version":   "17.4",
		"Last Backup Date":  lastBackup,
	})
	writePlist(t, filepath.Join(dir, "Manifest.plist"), map[string]interface{}{
		"IsEncrypted": encrypted,
		"Date":        lastBackup,
	})
}

func TestDiscoverSingleBackup(t *testing.T) {
	root := t.TempDir()
	when := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	makeBackupDir(t, root, udidA, false, when)

	desc, err := Discover(root, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.DeviceID != udidA {
		t.Errorf("DeviceID = %q, want %q", desc.DeviceID, udidA)
	}
	if desc.Encrypted {
		t.Error("expected Encrypted = false")
	}
}

func TestDiscoverNoBackupsFound(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "not-a-udid"), 0755); err != nil {
		t.Fatal(err)
	}

	_, err := Discover(root, "", nil)
	if err == nil {
		t.Fatal("expected error for empty backup root")
	}
}

func TestDiscoverAmbiguousWithoutFilter(t *testing.T) {
	root := t.TempDir()
	makeBackupDir(t, root, udidA, false, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	makeBackupDir(t, root, udidB, false, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	_, err := Discover(root, "", nil)
	if err == nil {
		t.Fatal("expected ambiguous selection error")
	}
}

func TestDiscoverSelectsByDeviceFilter(t *testing.T) {
	root := t.TempDir()
	makeBackupDir(t, root, udidA, false, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	makeBackupDir(t, root, udidB, false, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	desc, err := Discover(root, udidB, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.DeviceID != udidB {
		t.Errorf("DeviceID = %q, want %q", desc.DeviceID, udidB)
	}
}

func TestDiscoverDeviceFilterNotFound(t *testing.T) {
	root := t.TempDir()
	makeBackupDir(t, root, udidA, false, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	makeBackupDir(t, root, udidB, false, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	_, err := Discover(root, "nonexistent-device", nil)
	if err == nil {
		t.Fatal("expected device-not-found error")
	}
}

func TestDiscoverDetectsEncryption(t *testing.T) {
	root := t.TempDir()
	makeBackupDir(t, root, udidA, true, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	desc, err := Discover(root, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !desc.Encrypted {
		t.Error("expected Encrypted = true")
	}
}

func TestDiscoverSkipsUnparsableCandidate(t *testing.T) {
	root := t.TempDir()
	makeBackupDir(t, root, udidA, false, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	// A UDID-shaped directory with no Info.plist at all should be skipped,
	// not fail discovery.
	if err := os.MkdirAll(filepath.Join(root, udidB), 0755); err != nil {
		t.Fatal(err)
	}

	desc, err := Discover(root, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.DeviceID != udidA {
		t.Errorf("DeviceID = %q, want %q", desc.DeviceID, udidA)
	}
}
