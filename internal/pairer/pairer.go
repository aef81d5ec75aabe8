// Package pairer matches voicemail catalog rows to their audio payload
// files and synthesizes records for orphan payloads, per SPEC_FULL.md
// section 4.6 (spec.md section 4.6, unchanged).
package pairer

import (
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rosevale/vmxtract/internal/logging"
	"github.com/rosevale/vmxtract/internal/model"
)

const voicemailDBName = "voicemail.db"

// PathResolver resolves a catalog entry to its on-disk content-addressed
// path. *manifest.Catalog satisfies this.
type PathResolver interface {
	OnDiskPath(entry model.CatalogEntry) string
}

// BuildPayloads converts catalog entries under Library/Voicemail/ into
// PayloadFiles, keeping only .amr/.awb/.m4a files and excluding the
// voicemail database itself and any greeting.* recording.
func BuildPayloads(entries []model.CatalogEntry, resolver PathResolver) []model.PayloadFile {
	var out []model.PayloadFile
	for _, e := range entries {
		base := path.Base(e.RelativePath)
		if base == voicemailDBName || strings.HasPrefix(base, "greeting.") {
			continue
		}
		codec, ok := codecForExtension(base)
		if !ok {
			continue
		}
		p := model.PayloadFile{
			Entry:            e,
			OriginalFilename: base,
			Codec:            codec,
		}
		if resolver != nil {
			p.OnDiskPath = resolver.OnDiskPath(e)
		}
		out = append(out, p)
	}
	return out
}

func codecForExtension(filename string) (model.AudioCodec, bool) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".amr":
		return model.CodecAMRNarrowband, true
	case ".awb":
		return model.CodecAMRWideband, true
	case ".m4a":
		return model.CodecAAC, true
	default:
		return model.CodecUnknown, false
	}
}

// stemEpoch parses a payload filename's stem as a Unix epoch in seconds.
func stemEpoch(filename string) (int64, bool) {
	stem := strings.TrimSuffix(filename, path.Ext(filename))
	n, err := strconv.ParseInt(stem, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Pair matches each payload to the record whose ReceivedAt equals its
// filename stem exactly, breaking ties by lowest ROWID. Payloads with no
// match get a synthetic record; payloads whose stem is not an integer
// epoch are skipped and not returned. Records left unmatched after every payload
// is processed are dropped and logged at warn level.
func Pair(records []model.VoicemailRecord, payloads []model.PayloadFile, log *logging.Logger) []model.PairedVoicemail {
	byEpoch := make(map[int64][]model.VoicemailRecord)
	for _, r := range records {
		byEpoch[r.ReceivedAt.Unix()] = append(byEpoch[r.ReceivedAt.Unix()], r)
	}
	for epoch := range byEpoch {
		sort.Slice(byEpoch[epoch], func(i, j int) bool {
			return byEpoch[epoch][i].RowID < byEpoch[epoch][j].RowID
		})
	}

	var paired []model.PairedVoicemail
	for _, p := range payloads {
		stem, ok := stemEpoch(p.OriginalFilename)
		if !ok {
			continue
		}

		candidates := byEpoch[stem]
		if len(candidates) > 0 {
			record := candidates[0]
			byEpoch[stem] = candidates[1:]
			paired = append(paired, model.PairedVoicemail{Payload: p, Record: record})
			continue
		}

		synthetic := model.VoicemailRecord{
			ReceivedAt: time.Unix(stem, 0).UTC(),
			Sender:     "Unknown",
			Synthetic:  true,
		}
		paired = append(paired, model.PairedVoicemail{Payload: p, Record: synthetic})
	}

	if log != nil {
		for epoch, leftover := range byEpoch {
			for _, r := range leftover {
				log.Warn("dropping voicemail record with no matching payload", map[string]interface{}{
					"rowid": r.RowID,
					"date":  time.Unix(epoch, 0).UTC().Format(time.RFC3339),
				})
			}
		}
	}

	return paired
}
