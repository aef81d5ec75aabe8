// Package history is a local run ledger: a SQLite-backed store recording
// past extraction runs and the voicemails they converted, per
// SPEC_FULL.md section 4.14. It is informational bookkeeping only — it
// never gates or skips a conversion decision. Adapted from the teacher's
// database package, including its embedded-migration pattern.
package history

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rosevale/vmxtract/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the run-history SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at path and
// applies any pending migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%03d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", entry.Name(), err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", entry.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CountSeen returns how many of the given voicemail keys already have a
// history record for deviceID.
func (s *Store) CountSeen(deviceID string, voicemailKeys []string) (int, error) {
	count := 0
	for _, key := range voicemailKeys {
		var exists int
		err := s.db.QueryRow(
			`SELECT 1 FROM voicemail_history WHERE device_id = ? AND voicemail_key = ?`,
			deviceID, key,
		).Scan(&exists)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

// RecordVoicemail upserts one converted voicemail's history row.
func (s *Store) RecordVoicemail(rec model.RunHistoryRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO voicemail_history (device_id, voicemail_key, output_path, converted_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(device_id, voicemail_key) DO UPDATE SET output_path = excluded.output_path, converted_at = excluded.converted_at`,
		rec.DeviceID, rec.VoicemailKey, rec.OutputPath, rec.ConvertedAt.UTC(),
	)
	return err
}

// RecordRun inserts or updates a run's summary row.
func (s *Store) RecordRun(summary model.RunSummary) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, device_id, started_at, finished_at, discovered, converted, failed, skipped, exit_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   finished_at = excluded.finished_at,
		   discovered = excluded.discovered,
		   converted = excluded.converted,
		   failed = excluded.failed,
		   skipped = excluded.skipped,
		   exit_code = excluded.exit_code`,
		summary.RunID, summary.DeviceID, summary.StartedAt.UTC(), finishedAtOrNil(summary.FinishedAt),
		summary.Discovered, summary.Converted, summary.Failed, summary.Skipped, summary.ExitCode,
	)
	return err
}

func finishedAtOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
