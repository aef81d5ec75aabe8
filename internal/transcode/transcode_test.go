package transcode

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rosevale/vmxtract/internal/metadata"
)

func TestParseVersion(t *testing.T) {
	major, minor, err := parseVersion("ffmpeg version 6.1.1 Copyright (c) 2000-2023\nbuilt with gcc\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if major != 6 || minor != 1 {
		t.Errorf("got %d.%d, want 6.1", major, minor)
	}
}

func TestParseVersionUnparsable(t *testing.T) {
	_, _, err := parseVersion("not a version string at all\n")
	if err == nil {
		t.Fatal("expected an error for unparsable version output")
	}
}

func TestParseProgressLine(t *testing.T) {
	secs, ok := parseProgressLine("frame=  120 fps=30 q=-1.0 size=     256kB time=00:01:05.50 bitrate= 512.0kbits/s")
	if !ok {
		t.Fatal("expected progress line to match")
	}
	want := 65.5
	if secs != want {
		t.Errorf("secs = %v, want %v", secs, want)
	}
}

func TestParseProgressLineNoMatch(t *testing.T) {
	_, ok := parseProgressLine("no time information here")
	if ok {
		t.Fatal("expected no match")
	}
}

func TestClassifyFailureKnownSubstring(t *testing.T) {
	tail := []string{"some preceding line", "Invalid data found when processing input"}
	got := classifyFailure(tail)
	if got != "Invalid data found" {
		t.Errorf("classifyFailure = %q, want substring match", got)
	}
}

func TestClassifyFailureFallsBackToTail(t *testing.T) {
	tail := []string{"line one", "line two"}
	got := classifyFailure(tail)
	if got != "line one\nline two" {
		t.Errorf("classifyFailure = %q", got)
	}
}

func TestBuildArgsOrder(t *testing.T) {
	tags := metadata.TagMap{"title": "Unknown"}
	args := buildArgs("in.amr", "out.wav", tags)

	if args[0] != "-i" || args[1] != "in.amr" {
		t.Fatalf("expected input first, got %v", args[:2])
	}
	if args[len(args)-1] != "out.wav" {
		t.Errorf("expected output last, got %v", args)
	}
	if args[len(args)-2] != "-stats" {
		t.Errorf("expected -stats before output, got %v", args)
	}
}

func TestCheckDependenciesMissingBinary(t *testing.T) {
	d := NewDriver(filepath.Join(t.TempDir(), "no-such-ffmpeg"), filepath.Join(t.TempDir(), "no-such-ffprobe"))
	_, err := d.CheckDependencies(context.Background())
	if err == nil {
		t.Fatal("expected DependencyMissing error for missing binary")
	}
}

// fakeFFmpegScript writes a shell script that ignores its arguments,
// prints one progress line, creates the output file named by its final
// argument, and exits 0 — standing in for a real ffmpeg binary in tests
// that don't have one available.
func fakeFFmpegScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg.sh")
	script := "#!/bin/sh\necho 'frame=1 time=00:00:01.00 bitrate=N/A'\neval out=\"\\${$#}\"\ntouch \"$out\"\nexit 0\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake ffmpeg script: %v", err)
	}
	return path
}

func TestConvertSuccess(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available in this environment")
	}

	d := NewDriver(fakeFFmpegScript(t), "")
	outDir := t.TempDir()
	output := filepath.Join(outDir, "out.wav")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var progressed []float64
	result := d.Convert(ctx, "in.amr", output, metadata.TagMap{}, 10, func(p float64) {
		progressed = append(progressed, p)
	})

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.ErrorMsg)
	}
	if result.OutputPath != output {
		t.Errorf("OutputPath = %q, want %q", result.OutputPath, output)
	}
}

func TestConvertCancellation(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available in this environment")
	}

	path := filepath.Join(t.TempDir(), "slow-ffmpeg.sh")
	script := "#!/bin/sh\nsleep 30\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	d := NewDriver(path, "")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	result := d.Convert(ctx, "in.amr", filepath.Join(t.TempDir(), "out.wav"), metadata.TagMap{}, 0, nil)
	if result.Success {
		t.Fatal("expected cancellation to prevent success")
	}
	if result.ErrorMsg != "cancelled" {
		t.Errorf("ErrorMsg = %q, want cancelled", result.ErrorMsg)
	}
}
