// Package transcode implements the Transcoder (C6): invoking ffmpeg to
// produce a faststart MP4 with the streams the processor decided are
// needed, copying streams that are already native instead of re-encoding
// them.
package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

const (
	h264Preset = "veryslow"
	h264CRF    = "18"
	mp4Flags   = "+faststart"

	shellLogName = "shell.log"
)

// Plan describes the exact streams a transcode should produce.
type Plan struct {
	// CopyVideo, when true, remuxes the existing video stream unchanged
	// ("-c:v copy"); otherwise it is re-encoded to libx264.
	CopyVideo bool

	// CopyAudio, when true, remuxes the existing audio stream unchanged
	// ("-c:a copy"); when false, no audio codec flag is emitted — ffmpeg
	// falls back to AAC's implicit default encoder for the mp4 muxer.
	CopyAudio bool
}

// Args builds the ffmpeg codec/mux argument list for this plan, in the
// fixed order the reference tool has always emitted them in: faststart
// flag, audio codec, video codec, stream map, muxing queue size.
func (p Plan) Args() []string {
	args := []string{"-movflags", mp4Flags}

	if p.CopyAudio {
		args = append(args, "-c:a", "copy")
	}

	if p.CopyVideo {
		args = append(args, "-c:v", "copy")
	} else {
		args = append(args, "-c:v", "libx264", "-crf", h264CRF, "-preset", h264Preset)
	}

	args = append(args, "-map", "0", "-max_muxing_queue_size", "1024")

	return args
}

// Transcoder runs ffmpeg against a raw input file, producing outputPath.
type Transcoder struct {
	binary string
	logger *slog.Logger
}

// NewTranscoder creates a Transcoder using the given ffmpeg binary name
// or path.
func NewTranscoder(binary string, logger *slog.Logger) *Transcoder {
	if binary == "" {
		binary = "ffmpeg"
	}

	return &Transcoder{binary: binary, logger: logger}
}

// Run invokes ffmpeg on rawPath, writing outputPath, with stdout and
// stderr appended to shell.log in scratchDir. Returns a non-nil error
// wrapping *exec.ExitError on a non-zero ffmpeg exit.
func (t *Transcoder) Run(ctx context.Context, scratchDir, rawPath, outputPath string, plan Plan) error {
	args := append([]string{"-nostdin", "-y", "-i", rawPath}, plan.Args()...)
	args = append(args, outputPath)

	t.logger.Info("running ffmpeg", slog.String("binary", t.binary), slog.Any("args", args))

	logPath := filepath.Join(scratchDir, shellLogName)

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("transcode: opening %s: %w", logPath, err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Dir = scratchDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("transcode: ffmpeg failed on %s (see %s): %w", rawPath, logPath, err)
	}

	return nil
}
