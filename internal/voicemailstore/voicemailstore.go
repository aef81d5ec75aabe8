// Package voicemailstore locates the voicemail catalog database inside a
// backup, copies it to a scoped temporary directory, and reads its rows,
// per SPEC_FULL.md section 4.5 (spec.md section 4.5, unchanged).
package voicemailstore

import (
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rosevale/vmxtract/internal/errs"
	"github.com/rosevale/vmxtract/internal/logging"
	"github.com/rosevale/vmxtract/internal/manifest"
	"github.com/rosevale/vmxtract/internal/model"
)

const (
	voicemailDomain = "HomeDomain"
	voicemailPath   = "Library/Voicemail/voicemail.db"
)

// Locate finds the voicemail.db catalog entry. Returns NoVoicemails if it
// is absent from the catalog.
func Locate(cat *manifest.Catalog) (model.CatalogEntry, error) {
	entry, found, err := cat.FindByDomainAndPath(voicemailDomain, voicemailPath)
	if err != nil {
		return model.CatalogEntry{}, err
	}
	if !found {
		return model.CatalogEntry{}, errs.New(errs.NoVoicemails, "backup contains no voicemail catalog")
	}
	return entry, nil
}

// CopyToTemp copies the voicemail.db payload referenced by entry into
// tempDir and returns the copy's path.
func CopyToTemp(cat *manifest.Catalog, entry model.CatalogEntry, tempDir string) (string, error) {
	src, err := os.Open(cat.OnDiskPath(entry))
	if err != nil {
		return "", errs.Wrap(errs.NoVoicemails, err, "cannot read voicemail.db payload")
	}
	defer src.Close()

	dstPath := filepath.Join(tempDir, "voicemail.db")
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return dstPath, nil
}

// ReadAll opens the voicemail database at dbPath and returns every row,
// regardless of trashed/read/spam status; that filtering belongs to the
// orchestrator. Rows whose date column is null or negative are skipped
// with a warning.
func ReadAll(dbPath string, log *logging.Logger) ([]model.VoicemailRecord, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, errs.Wrap(errs.NoVoicemails, err, "cannot open voicemail.db")
	}
	defer db.Close()

	rows, err := db.Query(`SELECT ROWID, remote_uid, date, sender, callback_num, duration, trashed_date, flags FROM voicemail`)
	if err != nil {
		return nil, errs.Wrap(errs.NoVoicemails, err, "cannot query voicemail table")
	}
	defer rows.Close()

	var records []model.VoicemailRecord
	for rows.Next() {
		var (
			rowID       int64
			remoteUID   sql.NullInt64
			date        sql.NullInt64
			sender      sql.NullString
			callbackNum sql.NullString
			duration    sql.NullInt64
			trashedDate sql.NullInt64
			flags       sql.NullInt64
		)
		if err := rows.Scan(&rowID, &remoteUID, &date, &sender, &callbackNum, &duration, &trashedDate, &flags); err != nil {
			return nil, err
		}

		if !date.Valid || date.Int64 < 0 {
			if log != nil {
				log.Warn("skipping voicemail row with null or negative date", map[string]interface{}{"rowid": rowID})
			}
			continue
		}

		rec := model.VoicemailRecord{
			RowID:       rowID,
			RemoteUID:   remoteUID.Int64,
			ReceivedAt:  time.Unix(date.Int64, 0).UTC(),
			Sender:      sender.String,
			CallbackNum: callbackNum.String,
			DurationSec: int(duration.Int64),
		}
		if trashedDate.Valid {
			t := time.Unix(trashedDate.Int64, 0).UTC()
			rec.TrashedAt = &t
		}
		rec.Read = flags.Int64&0x01 != 0
		rec.Spam = flags.Int64&0x04 != 0

		records = append(records, rec)
	}
	return records, rows.Err()
}
