// Package output generates collision-free output paths under a
// date-scoped layout and optionally preserves original payloads, per
// SPEC_FULL.md section 4.9 (spec.md section 4.9, unchanged).
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rosevale/vmxtract/internal/logging"
)

const backupSiblingDir = "voicemail-backup"

// DateDir returns <root>/YYYY-MM-DD for the given instant, host local time
// truncated to day.
func DateDir(root string, when time.Time) string {
	return filepath.Join(root, when.Local().Format("2006-01-02"))
}

// EnsureDir creates dir (and parents) if it does not already exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// GenerateFilename builds "voicemail-<stamp>-<caller>.<ext>" where stamp
// is received's ISO-8601 rendering with colons replaced by hyphens.
func GenerateFilename(received time.Time, callerToken, ext string) string {
	stamp := received.UTC().Format("2006-01-02T15-04-05")
	return fmt.Sprintf("voicemail-%s-%s.%s", stamp, callerToken, ext)
}

// ResolvePath returns a path in dir for filename, appending _001, _002, …
// before the extension until a free name is found.
func ResolvePath(dir, filename string) (string, error) {
	candidate := filepath.Join(dir, filename)
	if !exists(candidate) {
		return candidate, nil
	}

	ext := filepath.Ext(filename)
	stem := filename[:len(filename)-len(ext)]
	for n := 1; ; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%03d%s", stem, n, ext))
		if !exists(candidate) {
			return candidate, nil
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// PreservePayload copies a payload file to the sibling backup directory
// <outputRoot>/../voicemail-backup/YYYY-MM-DD/<stem>.<ext>, keeping the
// same date-scoping as the WAV output. If the sibling directory cannot be
// created (e.g. permission denied), the failure is logged as a warning and
// WAV production is unaffected — this function never returns an error to
// a caller whose pipeline must keep going.
func PreservePayload(outputRoot string, received time.Time, srcPath, stem, ext string, log *logging.Logger) {
	backupRoot := filepath.Join(outputRoot, "..", backupSiblingDir)
	dir := DateDir(backupRoot, received)
	if err := EnsureDir(dir); err != nil {
		if log != nil {
			log.Warn("could not create original-preservation directory, skipping", map[string]interface{}{
				"dir":   dir,
				"error": err.Error(),
			})
		}
		return
	}

	dstPath, err := ResolvePath(dir, stem+"."+ext)
	if err != nil {
		if log != nil {
			log.Warn("could not resolve original-preservation path, skipping", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	if err := copyFile(srcPath, dstPath); err != nil && log != nil {
		log.Warn("could not copy original payload, skipping", map[string]interface{}{
			"src":   srcPath,
			"dst":   dstPath,
			"error": err.Error(),
		})
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
