// Package transcode drives the external ffmpeg/ffprobe binaries to convert
// voicemail payloads to the fixed WAV output format, per SPEC_FULL.md
// section 4.7 (spec.md section 4.7, unchanged). Represented as two
// concrete client records per spec.md section 9's design note, not a
// runtime-dispatched hierarchy.
package transcode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rosevale/vmxtract/internal/cmdutil"
	"github.com/rosevale/vmxtract/internal/errs"
	"github.com/rosevale/vmxtract/internal/metadata"
	"github.com/rosevale/vmxtract/internal/model"
)

const minMajorVersion = 4

var (
	versionRe  = regexp.MustCompile(`(?i)version\s+([0-9]+)\.([0-9]+)`)
	progressRe = regexp.MustCompile(`time=(\d\d):(\d\d):(\d\d(?:\.\d+)?)`)
	errorSubstrings = []string{
		"Invalid data found",
		"No such file",
		"Permission denied",
		"Unknown decoder",
	}
)

// ProgressFunc receives the fraction (0..1) of one item's conversion that
// has completed so far. The Driver never touches global run state; the
// Orchestrator composes this into its own item_index/total accounting.
type ProgressFunc func(percent float64)

// Driver holds the two external binary locations per spec.md section 9:
// ffmpeg for conversion, ffprobe for probing. Represented as a flat
// struct, not an interface hierarchy — there is exactly one
// implementation.
type Driver struct {
	FFmpegPath  string
	FFprobePath string
}

// NewDriver builds a Driver for the given binary locations (absolute
// paths or names resolvable on PATH).
func NewDriver(ffmpegPath, ffprobePath string) *Driver {
	return &Driver{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// CheckDependencies probes both binaries with `-version` and requires at
// least minMajorVersion.0. A missing binary or non-zero exit is fatal
// (DependencyMissing); an unparseable version string is only a warning —
// the caller decides whether to log it.
func (d *Driver) CheckDependencies(ctx context.Context) (warning string, err error) {
	for _, bin := range []struct {
		name string
		path string
	}{{"ffmpeg", d.FFmpegPath}, {"ffprobe", d.FFprobePath}} {
		cmd := exec.CommandContext(ctx, bin.path, "-version")
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		out, runErr := cmd.Output()
		if runErr != nil {
			detail := cmdutil.ErrorDetail(runErr, &stderr)
			return "", errs.Wrap(errs.DependencyMissing, runErr, bin.name+" is not available: "+detail).
				WithSuggestion(installHint(bin.name))
		}

		major, minor, parseErr := parseVersion(string(out))
		if parseErr != nil {
			warning = fmt.Sprintf("could not parse %s version output, proceeding anyway", bin.name)
			continue
		}
		if major < minMajorVersion {
			return "", errs.Newf(errs.DependencyMissing, "%s version %d.%d is below the minimum supported version %d.0", bin.name, major, minor, minMajorVersion).
				WithSuggestion(installHint(bin.name))
		}
	}
	return warning, nil
}

func installHint(bin string) string {
	switch runtime.GOOS {
	case "darwin":
		return "brew install ffmpeg"
	case "windows":
		return "download a build from https://ffmpeg.org/download.html and add it to PATH"
	default:
		return "install ffmpeg via your distribution's package manager (e.g. apt install ffmpeg)"
	}
}

func parseVersion(output string) (major, minor int, err error) {
	lines := strings.SplitN(output, "\n", 2)
	if len(lines) == 0 {
		return 0, 0, fmt.Errorf("empty version output")
	}
	m := versionRe.FindStringSubmatch(lines[0])
	if m == nil {
		return 0, 0, fmt.Errorf("no version token found")
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	return major, minor, nil
}

// ffprobeOutput mirrors the subset of ffprobe's -show_format -show_streams
// JSON document this driver needs.
type ffprobeOutput struct {
	Streams []struct {
		CodecName  string `json:"codec_name"`
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		BitRate    string `json:"bit_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe inspects an input file's audio stream. A probe failure is
// non-fatal for the item: the caller proceeds without a known duration
// and reports progress as indeterminate.
func (d *Driver) Probe(ctx context.Context, path string) (model.ProbedAudio, error) {
	out, err := exec.CommandContext(ctx, d.FFprobePath,
		"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path,
	).Output()
	if err != nil {
		return model.ProbedAudio{}, fmt.Errorf("probe failed: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return model.ProbedAudio{}, fmt.Errorf("probe output unparsable: %w", err)
	}

	var audio model.ProbedAudio
	for _, s := range parsed.Streams {
		if s.CodecType != "audio" {
			continue
		}
		audio.Codec = s.CodecName
		audio.SampleRate, _ = strconv.Atoi(s.SampleRate)
		audio.Channels = s.Channels
		audio.BitRate, _ = strconv.Atoi(s.BitRate)
		audio.DurationS, _ = strconv.ParseFloat(s.Duration, 64)
		break
	}
	if audio.DurationS == 0 {
		audio.DurationS, _ = strconv.ParseFloat(parsed.Format.Duration, 64)
	}
	if audio.BitRate == 0 {
		audio.BitRate, _ = strconv.Atoi(parsed.Format.BitRate)
	}
	return audio, nil
}

// buildArgs constructs the ffmpeg argument list in the order spec.md
// section 4.7 fixes: input, sample rate, channels, codec, metadata pairs,
// overwrite, loglevel, stats, output.
func buildArgs(input, output string, tags metadata.TagMap) []string {
	args := []string{
		"-i", input,
		"-ar", strconv.Itoa(model.OutputSampleRate),
		"-ac", strconv.Itoa(model.OutputChannels),
		"-acodec", "pcm_s16le",
	}
	for k, v := range tags {
		args = append(args, "-metadata", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, "-y", "-loglevel", "info", "-stats", output)
	return args
}

// Convert drives one conversion to completion (or failure/cancellation).
// probedDurationS is zero when the prior Probe step failed or was
// skipped; in that case progress is reported as indeterminate (the
// callback is never invoked with a meaningful fraction).
func (d *Driver) Convert(ctx context.Context, input, output string, tags metadata.TagMap, probedDurationS float64, onProgress ProgressFunc) model.ConversionResult {
	start := time.Now()
	result := model.ConversionResult{InputPath: input}

	cmd := exec.CommandContext(ctx, d.FFmpegPath, buildArgs(input, output, tags)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		result.ErrorMsg = err.Error()
		return result
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		result.ErrorMsg = err.Error()
		return result
	}

	done := make(chan struct{})
	go watchCancellation(ctx, cmd, done)

	var tail []string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail = appendTail(tail, line)

		if probedDurationS > 0 && onProgress != nil {
			if secs, ok := parseProgressLine(line); ok {
				percent := secs / probedDurationS
				if percent < 0 {
					percent = 0
				}
				if percent > 1 {
					percent = 1
				}
				onProgress(percent)
			}
		}
	}

	waitErr := cmd.Wait()
	close(done)
	result.Elapsed = time.Since(start)

	if ctx.Err() != nil {
		result.ErrorMsg = "cancelled"
		return result
	}

	if waitErr != nil {
		result.ErrorMsg = classifyFailure(tail)
		return result
	}

	result.Success = true
	result.OutputPath = output
	return result
}

func watchCancellation(ctx context.Context, cmd *exec.Cmd, done chan struct{}) {
	select {
	case <-ctx.Done():
	case <-done:
		return
	}
	if cmd.Process == nil {
		return
	}
	terminateGracefully(cmd)
	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		cmd.Process.Kill()
	}
}

func appendTail(tail []string, line string) []string {
	const maxTail = 5
	tail = append(tail, line)
	if len(tail) > maxTail {
		tail = tail[len(tail)-maxTail:]
	}
	return tail
}

func parseProgressLine(line string) (float64, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	s, _ := strconv.ParseFloat(m[3], 64)
	return float64(h)*3600 + float64(mi)*60 + s, true
}

func classifyFailure(tail []string) string {
	joined := strings.Join(tail, "\n")
	for _, substr := range errorSubstrings {
		if strings.Contains(joined, substr) {
			return substr
		}
	}
	if len(tail) == 0 {
		return "transcoder exited with an error and produced no output"
	}
	return joined
}
