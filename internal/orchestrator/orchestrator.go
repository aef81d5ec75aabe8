// Package orchestrator sequences the pipeline stages, collects per-item
// results, and maps fatal errors to process exit codes, per SPEC_FULL.md
// section 4.10 (spec.md section 4.10, unchanged).
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rosevale/vmxtract/internal/config"
	"github.com/rosevale/vmxtract/internal/discovery"
	"github.com/rosevale/vmxtract/internal/errs"
	"github.com/rosevale/vmxtract/internal/history"
	"github.com/rosevale/vmxtract/internal/logging"
	"github.com/rosevale/vmxtract/internal/manifest"
	"github.com/rosevale/vmxtract/internal/metadata"
	"github.com/rosevale/vmxtract/internal/model"
	"github.com/rosevale/vmxtract/internal/notify"
	"github.com/rosevale/vmxtract/internal/output"
	"github.com/rosevale/vmxtract/internal/pairer"
	"github.com/rosevale/vmxtract/internal/transcode"
	"github.com/rosevale/vmxtract/internal/validator"
	"github.com/rosevale/vmxtract/internal/voicemailstore"
)

const voicemailDomain = "HomeDomain"
const voicemailPrefix = "Library/Voicemail/"

// ProgressCallback mirrors spec.md section 9's design note: a single
// method the Driver's per-item percent feeds into, scoped to the whole
// run by item_index/total. The Orchestrator is the only component aware
// of this; the Driver depends on nothing but transcode.ProgressFunc.
type ProgressCallback interface {
	OnProgress(itemIndex, total int, percent float64) // percent in 0..100
}

// Orchestrator wires every stage together for one run.
type Orchestrator struct {
	Config   *config.Config
	Log      *logging.Logger
	History  *history.Store // optional
	Notifier *notify.Notifier // optional
	Progress ProgressCallback // optional
}

// Run executes one full extraction pass and returns the run summary
// together with the process exit code spec.md section 6 fixes.
func (o *Orchestrator) Run(ctx context.Context) (model.RunSummary, int) {
	// runDate buckets every item's output directory for this run, not each
	// voicemail's own received time, so a single run always lands in one
	// date directory.
	runDate := time.Now()
	summary := model.RunSummary{StartedAt: runDate}

	if err := o.Config.Validate(); err != nil {
		summary.ExitCode = errs.ConfigInvalid.ExitCode()
		o.finish(ctx, &summary, fmt.Sprintf("invalid configuration: %v", err))
		return summary, summary.ExitCode
	}

	desc, err := discovery.Discover(o.Config.Backup.SearchRoot, o.Config.Backup.DeviceFilter, o.Log)
	if err != nil {
		summary.ExitCode = exitCodeFor(err)
		o.finish(ctx, &summary, err.Error())
		return summary, summary.ExitCode
	}
	summary.DeviceID = desc.DeviceID
	summary.RunID = fmt.Sprintf("%s-%d", desc.DeviceID, time.Now().UnixNano())

	if err := validator.Validate(desc, o.Log); err != nil {
		summary.ExitCode = exitCodeFor(err)
		o.finish(ctx, &summary, err.Error())
		return summary, summary.ExitCode
	}

	driver := transcode.NewDriver(o.Config.Transcoder.FFmpegPath, o.Config.Transcoder.FFprobePath)
	if warning, err := driver.CheckDependencies(ctx); err != nil {
		summary.ExitCode = exitCodeFor(err)
		o.finish(ctx, &summary, err.Error())
		return summary, summary.ExitCode
	} else if warning != "" && o.Log != nil {
		o.Log.Warn(warning, nil)
	}

	cat, err := manifest.Open(desc.RootPath)
	if err != nil {
		summary.ExitCode = exitCodeFor(err)
		o.finish(ctx, &summary, err.Error())
		return summary, summary.ExitCode
	}
	defer cat.Close()

	tempDir, err := os.MkdirTemp("", "vmxtract-*")
	if err != nil {
		summary.ExitCode = errs.UnexpectedInternal.ExitCode()
		o.finish(ctx, &summary, err.Error())
		return summary, summary.ExitCode
	}
	defer os.RemoveAll(tempDir)

	paired, err := o.collectPaired(cat, tempDir)
	if err != nil && len(paired) == 0 {
		summary.ExitCode = exitCodeFor(err)
		o.finish(ctx, &summary, err.Error())
		return summary, summary.ExitCode
	}
	if len(paired) == 0 {
		summary.ExitCode = errs.NoVoicemails.ExitCode()
		o.finish(ctx, &summary, "no voicemails found in backup")
		return summary, summary.ExitCode
	}

	sort.Slice(paired, func(i, j int) bool {
		return paired[i].Record.RowID < paired[j].Record.RowID
	})
	summary.Discovered = len(paired)

	if len(paired) > 10000 && o.Log != nil {
		o.Log.Info("large voicemail catalog, this may take a while", map[string]interface{}{"count": len(paired)})
	}

	if o.History != nil {
		keys := make([]string, len(paired))
		for i, p := range paired {
			keys[i] = voicemailKey(p.Record)
		}
		if seen, err := o.History.CountSeen(desc.DeviceID, keys); err == nil {
			summary.AlreadySeen = seen
		}
	}

	for i, pv := range paired {
		if ctx.Err() != nil {
			summary.Skipped += len(paired) - i
			break
		}
		if pv.Record.TrashedAt != nil && !o.Config.Backup.IncludeTrashed {
			summary.Skipped++
			continue
		}
		o.processOne(ctx, driver, pv, i, len(paired), desc, tempDir, runDate, &summary)
	}

	if summary.Converted > 0 {
		summary.ExitCode = 0
	} else {
		summary.ExitCode = errs.ConversionFailed.ExitCode()
	}
	o.finish(ctx, &summary, "")
	return summary, summary.ExitCode
}

// collectPaired builds the voicemail/payload pairing for the backup.
// A missing voicemail.db is not an error as long as orphan payloads
// exist; an error is only ever returned together with an empty slice.
func (o *Orchestrator) collectPaired(cat *manifest.Catalog, tempDir string) ([]model.PairedVoicemail, error) {
	var records []model.VoicemailRecord

	entry, locateErr := voicemailstore.Locate(cat)
	if locateErr == nil {
		dbPath, err := voicemailstore.CopyToTemp(cat, entry, tempDir)
		if err != nil {
			return nil, err
		}
		records, err = voicemailstore.ReadAll(dbPath, o.Log)
		if err != nil {
			return nil, err
		}
	}

	entries, err := cat.ListByDomainPrefix(voicemailDomain, voicemailPrefix, o.Log)
	if err != nil {
		if locateErr != nil {
			return nil, locateErr
		}
		return nil, err
	}
	payloads := pairer.BuildPayloads(entries, cat)

	paired := pairer.Pair(records, payloads, o.Log)
	if len(paired) == 0 && locateErr != nil {
		return nil, locateErr
	}
	return paired, nil
}

func (o *Orchestrator) processOne(ctx context.Context, driver *transcode.Driver, pv model.PairedVoicemail, index, total int, desc model.BackupDescriptor, tempDir string, runDate time.Time, summary *model.RunSummary) {
	tagMap := metadata.BuildTagMap(pv.Record)
	if title, ok := metadata.ProbeExistingTags(pv.Payload.OnDiskPath); ok {
		tagMap["title"] = title
	}

	inputCopy := filepath.Join(tempDir, pv.Payload.OriginalFilename)
	if err := copyFile(pv.Payload.OnDiskPath, inputCopy); err != nil {
		summary.Failed++
		if o.Log != nil {
			o.Log.Error("could not stage payload for conversion", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	dateDir := output.DateDir(o.Config.Output.Root, runDate)
	if err := output.EnsureDir(dateDir); err != nil {
		summary.Failed++
		if o.Log != nil {
			o.Log.Error("could not create output directory", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	normalized := metadata.NormalizePhone(pv.Record.Sender)
	token := metadata.FilenameToken(normalized)
	wavName := output.GenerateFilename(pv.Record.ReceivedAt, token, "wav")
	wavPath, err := output.ResolvePath(dateDir, wavName)
	if err != nil {
		summary.Failed++
		return
	}

	probed, probeErr := driver.Probe(ctx, inputCopy)
	if probeErr != nil && o.Log != nil {
		o.Log.Warn("probe failed, converting without known duration", map[string]interface{}{
			"path":  inputCopy,
			"error": probeErr.Error(),
		})
	}

	result := driver.Convert(ctx, inputCopy, wavPath, tagMap, probed.DurationS, func(fraction float64) {
		if o.Progress != nil {
			o.Progress.OnProgress(index, total, fraction*100)
		}
	})
	result.Probed = probed
	result.InputSize = fileSize(inputCopy)

	if !result.Success {
		summary.Failed++
		if o.Log != nil {
			o.Log.Error("conversion failed", map[string]interface{}{"input": inputCopy, "error": result.ErrorMsg})
		}
		return
	}
	summary.Converted++
	result.OutputSize = fileSize(wavPath)

	if o.Log != nil {
		o.Log.Info("converted voicemail", map[string]interface{}{
			"output":      wavPath,
			"input_size":  humanize.Bytes(uint64(result.InputSize)),
			"output_size": humanize.Bytes(uint64(result.OutputSize)),
		})
	}

	metadata.VerifyOutputTags(wavPath, tagMap["title"], o.Log)

	stem := wavName[:len(wavName)-len(filepath.Ext(wavName))]
	if o.Config.Output.EmitSidecars {
		sidecar := metadata.BuildSidecar(pv.Record, pv.Payload, probed, desc.DeviceName, desc.OSVersion)
		if err := writeSidecar(dateDir, stem, sidecar); err != nil && o.Log != nil {
			o.Log.Warn("could not write sidecar document", map[string]interface{}{"error": err.Error()})
		}
	}

	if o.Config.Output.PreserveOriginals {
		ext := filepath.Ext(pv.Payload.OriginalFilename)
		if len(ext) > 0 {
			ext = ext[1:]
		}
		output.PreservePayload(o.Config.Output.Root, runDate, pv.Payload.OnDiskPath, stem, ext, o.Log)
	}

	if o.History != nil {
		_ = o.History.RecordVoicemail(model.RunHistoryRecord{
			DeviceID:     desc.DeviceID,
			VoicemailKey: voicemailKey(pv.Record),
			OutputPath:   wavPath,
			ConvertedAt:  time.Now(),
		})
	}
}

func (o *Orchestrator) finish(ctx context.Context, summary *model.RunSummary, failureMessage string) {
	summary.FinishedAt = time.Now()

	if o.History != nil {
		_ = o.History.RecordRun(*summary)
	}

	if o.Notifier != nil {
		title := "Voicemail extraction complete"
		message := fmt.Sprintf("Converted %d, failed %d, skipped %d.", summary.Converted, summary.Failed, summary.Skipped)
		if failureMessage != "" {
			title = "Voicemail extraction failed"
			message = failureMessage
		}
		notification := notify.FromEvent(model.NotificationEvent{Summary: *summary, Title: title, Message: message})
		_ = o.Notifier.SendRunSummary(ctx, notification)
	}
}

func voicemailKey(rec model.VoicemailRecord) string {
	if rec.Synthetic {
		return "synthetic-" + strconv.FormatInt(rec.ReceivedAt.Unix(), 10)
	}
	return strconv.FormatInt(rec.RowID, 10)
}

func exitCodeFor(err error) int {
	var fatal *errs.Error
	if errors.As(err, &fatal) {
		return fatal.ExitCode()
	}
	return errs.UnexpectedInternal.ExitCode()
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func writeSidecar(dir, stem string, sidecar metadata.Sidecar) error {
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, stem+".json"), data, 0644)
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
