// Package discovery enumerates candidate backup roots under a search
// directory, parses their device metadata, and selects one per
// SPEC_FULL.md section 4.2 (spec.md section 4.2, unchanged).
package discovery

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/rosevale/vmxtract/internal/errs"
	"github.com/rosevale/vmxtract/internal/logging"
	"github.com/rosevale/vmxtract/internal/model"
	"github.com/rosevale/vmxtract/internal/plist"
)

var udidHexRe = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// looksLikeUDID reports whether name matches either UDID shape spec.md 4.2
// recognizes: 40 hex chars, or the 8-4-4-4-12 dashed UUID form. The dashed
// form has no fixed-width regex equivalent to the hex form's length check,
// so it is validated with uuid.Parse instead of a second regexp.
func looksLikeUDID(name string) bool {
	if udidHexRe.MatchString(name) {
		return true
	}
	_, err := uuid.Parse(name)
	return err == nil && len(name) == 36
}

// Discover enumerates immediate children of root that look like backup
// directories, parses their metadata, and selects exactly one according to
// deviceFilter. log receives warnings for candidates that fail to parse;
// those candidates are dropped, not fatal.
func Discover(root, deviceFilter string, log *logging.Logger) (model.BackupDescriptor, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return model.BackupDescriptor{}, errs.Wrap(errs.BackupNotFound, err, "cannot read backup search root "+root)
	}

	var candidates []model.BackupDescriptor
	for _, e := range entries {
		if !e.IsDir() || !looksLikeUDID(e.Name()) {
			continue
		}
		dir := filepath.Join(root, e.Name())
		desc, err := parseCandidate(dir, e.Name())
		if err != nil {
			if log != nil {
				log.Warn("skipping unparsable backup candidate", map[string]interface{}{
					"path":  dir,
					"error": err.Error(),
				})
			}
			continue
		}
		candidates = append(candidates, desc)
	}

	if len(candidates) == 0 {
		return model.BackupDescriptor{}, errs.New(errs.BackupNotFound, "no iOS backups found under "+root)
	}

	if len(candidates) == 1 {
		return candidates[0], nil
	}

	if deviceFilter != "" {
		for _, c := range candidates {
			if strings.EqualFold(c.DeviceID, deviceFilter) {
				return c, nil
			}
		}
		ids := deviceIDs(candidates)
		return model.BackupDescriptor{}, errs.Newf(errs.BackupNotFound,
			"device %q not found among available backups: %s", deviceFilter, strings.Join(ids, ", "))
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastBackupAt.After(candidates[j].LastBackupAt)
	})
	ids := deviceIDs(candidates)
	return model.BackupDescriptor{}, errs.Newf(errs.BackupAmbiguous,
		"multiple iOS backups found, specify a device: %s", strings.Join(ids, ", "))
}

func deviceIDs(descs []model.BackupDescriptor) []string {
	ids := make([]string, len(descs))
	for i, d := range descs {
		ids[i] = d.DeviceID
	}
	return ids
}

// parseCandidate parses Info.plist (required) and Manifest.plist (optional)
// for one candidate directory.
func parseCandidate(dir, dirName string) (model.BackupDescriptor, error) {
	info, err := plist.ParseFile(filepath.Join(dir, "Info.plist"))
	if err != nil {
		return model.BackupDescriptor{}, err
	}

	desc := model.BackupDescriptor{
		DeviceID:    dirName,
		DeviceName:  info.StringOr("Device Name", ""),
		ProductType: info.StringOr("Product Type", ""),
		OSVersion:   info.StringOr("Product Version", ""),
		RootPath:    dir,
	}
	if t, err := info.Date("Last Backup Date"); err == nil {
		desc.LastBackupAt = t
	}

	manifestPath := filepath.Join(dir, "Manifest.plist")
	if _, statErr := os.Stat(manifestPath); statErr == nil {
		manifest, err := plist.ParseFile(manifestPath)
		if err == nil {
			desc.Encrypted = manifest.BoolOr("IsEncrypted", false)
			if t, err := manifest.Date("Date"); err == nil {
				desc.LastBackupAt = t
			}
		}
	}

	return desc, nil
}
