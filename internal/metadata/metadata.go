// Package metadata builds the embedded tag map and sidecar document for a
// paired voicemail, per SPEC_FULL.md section 4.8 (spec.md section 4.8,
// unchanged), plus dhowden/tag-based tag verification from SPEC_FULL.md
// section 6.
package metadata

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dhowden/tag"

	"github.com/rosevale/vmxtract/internal/logging"
	"github.com/rosevale/vmxtract/internal/model"
)

const encodedBy = "vmxtract"

var nonDigitPlusRe = regexp.MustCompile(`[^0-9+]`)
var nonAlnumPlusRe = regexp.MustCompile(`[^0-9A-Za-z+]`)

// NormalizePhone implements spec.md 4.8's phone normalization rule. It is
// idempotent: NormalizePhone(NormalizePhone(x)) == NormalizePhone(x).
func NormalizePhone(raw string) string {
	if raw == "" || strings.EqualFold(raw, "Unknown") {
		return "Unknown"
	}
	digits := nonDigitPlusRe.ReplaceAllString(raw, "")
	if digits == "" {
		return "Unknown"
	}
	switch {
	case len(digits) == 10 && digits[0] != '+':
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	default:
		return digits
	}
}

// DisplayCaller formats a normalized phone for human display: North
// American E.164 numbers render as +1-XXX-XXX-XXXX; everything else is
// shown as-is.
func DisplayCaller(normalized string) string {
	if normalized == "Unknown" {
		return "Unknown"
	}
	if len(normalized) == 12 && strings.HasPrefix(normalized, "+1") {
		d := normalized[2:]
		return fmt.Sprintf("+1-%s-%s-%s", d[0:3], d[3:6], d[6:10])
	}
	return normalized
}

// FilenameToken renders a normalized phone (or "Unknown") safe for
// embedding in a filename: '+' kept, everything else non-alphanumeric
// dropped, truncated to 20 characters.
func FilenameToken(normalized string) string {
	token := nonAlnumPlusRe.ReplaceAllString(normalized, "")
	if token == "" {
		token = "Unknown"
	}
	if len(token) > 20 {
		token = token[:20]
	}
	return token
}

// TagMap is the set of tags to embed into the output WAV via the
// transcoder's -metadata flags.
type TagMap map[string]string

// BuildTagMap builds the embedded tag map for one paired voicemail. A
// record with no usable metadata (no reception time) yields an empty map.
func BuildTagMap(rec model.VoicemailRecord) TagMap {
	if rec.ReceivedAt.IsZero() {
		return TagMap{}
	}
	normalized := NormalizePhone(rec.Sender)

	return TagMap{
		"title":      DisplayCaller(normalized),
		"artist":     normalized,
		"date":       rec.ReceivedAt.Format("2006-01-02"),
		"comment":    fmt.Sprintf("Duration: %ds, Received: %s", rec.DurationSec, rec.ReceivedAt.Format("2006-01-02 15:04:05")),
		"encoded_by": encodedBy,
	}
}

// Sidecar is the structured document emitted alongside the output WAV
// when sidecars are enabled.
type Sidecar struct {
	Voicemail SidecarVoicemail `json:"voicemail"`
}

type SidecarVoicemail struct {
	Caller     SidecarCaller     `json:"caller"`
	Timestamps SidecarTimestamps `json:"timestamps"`
	Duration   SidecarDuration   `json:"duration"`
	Audio      SidecarAudio      `json:"audio"`
	Device     SidecarDevice     `json:"device"`
	Trashed    *string           `json:"trashed,omitempty"`
}

type SidecarCaller struct {
	PhoneNumber string `json:"phoneNumber"`
	DisplayName string `json:"displayName"`
}

type SidecarTimestamps struct {
	Received string `json:"received"`
}

type SidecarDuration struct {
	DatabaseSeconds  int   `json:"databaseSeconds"`
	ActualMilliseconds int64 `json:"actualMilliseconds"`
}

type SidecarAudio struct {
	OriginalFormat string `json:"originalFormat"`
	SampleRate     int    `json:"sampleRate"`
}

type SidecarDevice struct {
	Name      string `json:"name"`
	IOSVersion string `json:"iosVersion"`
}

// BuildSidecar builds the sidecar document for one paired voicemail.
// probed.DurationS is the transcoder's probed duration, in fractional
// seconds; zero if unknown.
func BuildSidecar(rec model.VoicemailRecord, payload model.PayloadFile, probed model.ProbedAudio, deviceName, osVersion string) Sidecar {
	normalized := NormalizePhone(rec.Sender)

	sc := Sidecar{
		Voicemail: SidecarVoicemail{
			Caller: SidecarCaller{
				PhoneNumber: normalized,
				DisplayName: DisplayCaller(normalized),
			},
			Timestamps: SidecarTimestamps{
				Received: rec.ReceivedAt.UTC().Format(time.RFC3339),
			},
			Duration: SidecarDuration{
				DatabaseSeconds:    rec.DurationSec,
				ActualMilliseconds: int64(probed.DurationS * 1000),
			},
			Audio: SidecarAudio{
				OriginalFormat: string(payload.Codec),
				SampleRate:     probed.SampleRate,
			},
			Device: SidecarDevice{
				Name:       deviceName,
				IOSVersion: osVersion,
			},
		},
	}
	if rec.TrashedAt != nil {
		s := rec.TrashedAt.UTC().Format(time.RFC3339)
		sc.Voicemail.Trashed = &s
	}
	return sc
}

// ProbeExistingTags reads any tags already embedded in a payload file
// before conversion, so a preferred title can be carried forward instead
// of defaulting to "Unknown". Failure is non-fatal: an empty result means
// "no usable tags found," never an error surfaced to the caller.
func ProbeExistingTags(path string) (title string, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return "", false
	}
	if t := m.Title(); t != "" {
		return t, true
	}
	return "", false
}

// VerifyOutputTags reads back the tags the transcoder wrote into the
// output WAV and reports whether the expected title made it in. Used by
// the orchestrator to log a warning on silent tag-embedding failures; it
// never fails the conversion itself.
func VerifyOutputTags(path, expectedTitle string, log *logging.Logger) {
	if log == nil || expectedTitle == "" {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		log.Warn("could not read back tags from converted output", map[string]interface{}{"path": path, "error": err.Error()})
		return
	}
	if m.Title() != expectedTitle {
		log.Warn("output tag title does not match expected title", map[string]interface{}{
			"path":     path,
			"expected": expectedTitle,
			"actual":   m.Title(),
		})
	}
}
