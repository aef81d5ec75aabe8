// Package manifest opens a backup's Manifest.db catalog and resolves
// (domain, relative path) pairs to content-addressed files, per
// SPEC_FULL.md section 4.4 (spec.md section 4.4, unchanged).
package manifest

import (
	"database/sql"
	"os"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/rosevale/vmxtract/internal/errs"
	"github.com/rosevale/vmxtract/internal/logging"
	"github.com/rosevale/vmxtract/internal/model"
)

var fileIDRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Catalog is a read-only handle on a backup's Manifest.db.
type Catalog struct {
	db   *sql.DB
	root string
}

// Open opens Manifest.db under root read-only.
func Open(root string) (*Catalog, error) {
	path := root + "/Manifest.db"
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, errs.Wrap(errs.BackupCorrupt, err, "cannot open Manifest.db")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.BackupCorrupt, err, "cannot open Manifest.db")
	}
	return &Catalog{db: db, root: root}, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// OnDiskPath resolves entry's content-addressed location under this
// catalog's backup root.
func (c *Catalog) OnDiskPath(entry model.CatalogEntry) string {
	return entry.OnDiskPath(c.root)
}

// FindByDomainAndPath resolves exactly one CatalogEntry, if present.
func (c *Catalog) FindByDomainAndPath(domain, relpath string) (model.CatalogEntry, bool, error) {
	row := c.db.QueryRow(
		`SELECT fileID, domain, relativePath FROM Files WHERE domain = ? AND relativePath = ? LIMIT 1`,
		domain, relpath,
	)
	var fileID, gotDomain, gotPath string
	if err := row.Scan(&fileID, &gotDomain, &gotPath); err != nil {
		if err == sql.ErrNoRows {
			return model.CatalogEntry{}, false, nil
		}
		return model.CatalogEntry{}, false, err
	}
	if !fileIDRe.MatchString(fileID) {
		return model.CatalogEntry{}, false, nil
	}
	return c.buildEntry(fileID, gotDomain, gotPath), true, nil
}

// ListByDomainPrefix returns every CatalogEntry in domain whose relative
// path starts with pathPrefix. Rows whose fileID fails the 40-char
// lowercase hex check are skipped with a warning, never fatal.
func (c *Catalog) ListByDomainPrefix(domain, pathPrefix string, log *logging.Logger) ([]model.CatalogEntry, error) {
	rows, err := c.db.Query(
		`SELECT fileID, domain, relativePath FROM Files WHERE domain = ? AND relativePath LIKE ? ESCAPE '\'`,
		domain, escapeLike(pathPrefix)+"%",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.CatalogEntry
	for rows.Next() {
		var fileID, gotDomain, gotPath string
		if err := rows.Scan(&fileID, &gotDomain, &gotPath); err != nil {
			return nil, err
		}
		if !strings.HasPrefix(gotPath, pathPrefix) {
			continue
		}
		if !fileIDRe.MatchString(fileID) {
			if log != nil {
				log.Warn("skipping catalog row with malformed file identifier", map[string]interface{}{
					"domain":        gotDomain,
					"relative_path": gotPath,
					"file_id":       fileID,
				})
			}
			continue
		}
		entries = append(entries, c.buildEntry(fileID, gotDomain, gotPath))
	}
	return entries, rows.Err()
}

func (c *Catalog) buildEntry(fileID, domain, relpath string) model.CatalogEntry {
	entry := model.CatalogEntry{FileID: fileID, Domain: domain, RelativePath: relpath}
	if info, err := os.Stat(entry.OnDiskPath(c.root)); err == nil {
		entry.Size = info.Size()
	}
	return entry
}

// escapeLike escapes SQL LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
