package manifest

import (
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func fileID(domain, relpath string) string {
	sum := sha1.Sum([]byte(domain + "-" + relpath))
	return hex.EncodeToString(sum[:])
}

func setupCatalog(t *testing.T, rows [][2]string) string {
	t.Helper()
	root := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(root, "Manifest.db"))
	if err != nil {
		t.Fatalf("failed to open manifest db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE Files (fileID TEXT, domain TEXT, relativePath TEXT)`); err != nil {
		t.Fatalf("failed to create Files table: %v", err)
	}

	for _, r := range rows {
		domain, relpath := r[0], r[1]
		id := fileID(domain, relpath)
		if _, err := db.Exec(`INSERT INTO Files (fileID, domain, relativePath) VALUES (?, ?, ?)`, id, domain, relpath); err != nil {
			t.Fatalf("failed to insert row: %v", err)
		}
		dir := filepath.Join(root, id[:2])
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, id), []byte("payload"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestFindByDomainAndPath(t *testing.T) {
	root := setupCatalog(t, [][2]string{
		{"HomeDomain", "Library/Voicemail/voicemail.db"},
	})

	cat, err := Open(root)
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	defer cat.Close()

	entry, found, err := cat.FindByDomainAndPath("HomeDomain", "Library/Voicemail/voicemail.db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected entry to be found")
	}
	wantID := "992df473bbb9e132f4b3b6e4d33f72171e97bc7a"
	if entry.FileID != wantID {
		t.Errorf("FileID = %q, want %q", entry.FileID, wantID)
	}
}

func TestFindByDomainAndPathNotFound(t *testing.T) {
	root := setupCatalog(t, nil)
	cat, err := Open(root)
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	defer cat.Close()

	_, found, err := cat.FindByDomainAndPath("HomeDomain", "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected entry not to be found")
	}
}

func TestListByDomainPrefix(t *testing.T) {
	root := setupCatalog(t, [][2]string{
		{"HomeDomain", "Library/Voicemail/1710255022.amr"},
		{"HomeDomain", "Library/Voicemail/1710255099.amr"},
		{"HomeDomain", "Library/SMS/sms.db"},
	})

	cat, err := Open(root)
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	defer cat.Close()

	entries, err := cat.ListByDomainPrefix("HomeDomain", "Library/Voicemail/", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestListByDomainPrefixSkipsMalformedFileID(t *testing.T) {
	root := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(root, "Manifest.db"))
	if err != nil {
		t.Fatalf("failed to open manifest db: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE Files (fileID TEXT, domain TEXT, relativePath TEXT)`); err != nil {
		t.Fatalf("failed to create Files table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO Files (fileID, domain, relativePath) VALUES (?, ?, ?)`, "not-valid-hex", "HomeDomain", "Library/Voicemail/bad.amr"); err != nil {
		t.Fatalf("failed to insert row: %v", err)
	}
	db.Close()

	cat, err := Open(root)
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	defer cat.Close()

	entries, err := cat.ListByDomainPrefix("HomeDomain", "Library/Voicemail/", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected malformed row to be skipped, got %d entries", len(entries))
	}
}

func TestEntryOnDiskPath(t *testing.T) {
	root := setupCatalog(t, [][2]string{
		{"HomeDomain", "Library/Voicemail/voicemail.db"},
	})
	cat, err := Open(root)
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	defer cat.Close()

	entry, _, err := cat.FindByDomainAndPath("HomeDomain", "Library/Voicemail/voicemail.db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(root, entry.FileID[:2], entry.FileID)
	got := entry.OnDiskPath(root)
	if got != want {
		t.Errorf("OnDiskPath = %q, want %q", got, want)
	}
	if entry.Size != int64(len("payload")) {
		t.Errorf("Size = %d, want %d", entry.Size, len("payload"))
	}
}
