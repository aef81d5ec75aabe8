// Package model holds the data types shared across pipeline stages, per
// the data model in SPEC_FULL.md section 3.
package model

import "time"

// BackupDescriptor is one validated backup root, produced by discovery and
// immutable thereafter.
type BackupDescriptor struct {
	DeviceID      string // 40 hex chars or 8-4-4-4-12 UUID form
	DeviceName    string
	ProductType   string
	OSVersion     string
	LastBackupAt  time.Time
	Encrypted     bool
	RootPath      string
}

// CatalogEntry is one file inside a backup's Manifest.db.
type CatalogEntry struct {
	FileID      string // 40-char lowercase SHA-1 hex
	Domain      string
	RelativePath string
	Size        int64
}

// OnDiskPath returns the content-addressed location of this entry under
// the given backup root: <root>/<id[0:2]>/<id>.
func (c CatalogEntry) OnDiskPath(root string) string {
	if len(c.FileID) < 2 {
		return ""
	}
	return root + "/" + c.FileID[:2] + "/" + c.FileID
}

// VoicemailRecord is one row from the voicemail catalog database, real or
// synthesized by the File Pairer for an orphan payload.
type VoicemailRecord struct {
	RowID        int64
	RemoteUID    int64
	ReceivedAt   time.Time // the "date" column, seconds since epoch, UTC
	Sender       string
	CallbackNum  string
	DurationSec  int
	Read         bool // flags & 0x01
	Spam         bool // flags & 0x04
	TrashedAt    *time.Time
	Synthetic    bool // true when no catalog row matched; see File Pairer
}

// AudioCodec identifies the payload's source codec, inferred from its
// file extension.
type AudioCodec string

const (
	CodecAMRNarrowband AudioCodec = "amr-nb"
	CodecAMRWideband   AudioCodec = "amr-wb"
	CodecAAC           AudioCodec = "aac"
	CodecUnknown       AudioCodec = "unknown"
)

// PayloadFile is one audio payload located on disk inside a backup.
type PayloadFile struct {
	Entry            CatalogEntry
	OriginalFilename string
	Codec            AudioCodec
	OnDiskPath       string
}

// PairedVoicemail joins a payload with the voicemail record it belongs to.
// Per invariant 3, exactly one of Record.Synthetic is consistently set: a
// real record or a synthesized one, never both, never neither.
type PairedVoicemail struct {
	Payload PayloadFile
	Record  VoicemailRecord
}

// ProbedAudio is what the Transcoder Driver's probe step learns about an
// input file before conversion.
type ProbedAudio struct {
	Codec      string
	SampleRate int
	Channels   int
	BitRate    int
	DurationS  float64 // fractional seconds; zero means probe failed/unknown
}

// ConversionResult is the outcome of transcoding one PairedVoicemail. It is
// always a value, never an error return — per-item failures live here so
// the orchestrator's loop never aborts on a single bad item.
type ConversionResult struct {
	Success    bool
	InputPath  string
	OutputPath string // empty on failure
	Probed     ProbedAudio
	InputSize  int64
	OutputSize int64
	Elapsed    time.Duration
	ErrorMsg   string
}

// OutputWAVSpec are the fixed parameters every successful conversion must
// produce, per invariant 4.
const (
	OutputSampleRate = 44100
	OutputChannels   = 1
	OutputBitsPerSample = 16
)

// RunSummary describes one orchestrator invocation, persisted to the run
// history store and used to build notification messages.
type RunSummary struct {
	RunID       string
	DeviceID    string
	StartedAt   time.Time
	FinishedAt  time.Time
	Discovered  int
	Converted   int
	Failed      int
	Skipped     int
	AlreadySeen int // count of items this run already has a history record for
	ExitCode    int
}

// RunHistoryRecord is one previously-converted voicemail, keyed by
// (device identifier, voicemail row id or synthetic stem). Informational
// only — it never gates or skips conversion.
type RunHistoryRecord struct {
	DeviceID     string
	VoicemailKey string // RowID, or the synthetic filename stem when Synthetic
	OutputPath   string
	ConvertedAt  time.Time
}

// NotificationEvent wraps a RunSummary with a human title/message for
// delivery through the notification channels.
type NotificationEvent struct {
	Summary RunSummary
	Title   string
	Message string
}
