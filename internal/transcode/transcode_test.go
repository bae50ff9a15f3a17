package transcode_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legnaleurc/faststart/internal/transcode"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestPlanArgsCopyBoth(t *testing.T) {
	plan := transcode.Plan{CopyVideo: true, CopyAudio: true}
	require.Equal(t, []string{
		"-movflags", "+faststart",
		"-c:a", "copy",
		"-c:v", "copy",
		"-map", "0",
		"-max_muxing_queue_size", "1024",
	}, plan.Args())
}

func TestPlanArgsReencodeVideo(t *testing.T) {
	plan := transcode.Plan{CopyVideo: false, CopyAudio: true}
	require.Equal(t, []string{
		"-movflags", "+faststart",
		"-c:a", "copy",
		"-c:v", "libx264", "-crf", "18", "-preset", "veryslow",
		"-map", "0",
		"-max_muxing_queue_size", "1024",
	}, plan.Args())
}

func fakeFFmpeg(t *testing.T, exitCode int) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg script requires a POSIX shell")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "ffmpeg")

	script := "#!/bin/sh\necho ran with: \"$@\"\nexit " + strconv.Itoa(exitCode) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	return path
}

func TestTranscoderRunSucceeds(t *testing.T) {
	scratchDir := t.TempDir()
	ffmpegPath := fakeFFmpeg(t, 0)

	tc := transcode.NewTranscoder(ffmpegPath, discardLogger())

	err := tc.Run(context.Background(), scratchDir, filepath.Join(scratchDir, "__raw.mp4"),
		filepath.Join(scratchDir, "out.mp4"), transcode.Plan{CopyVideo: true, CopyAudio: true})
	require.NoError(t, err)

	logBytes, err := os.ReadFile(filepath.Join(scratchDir, "shell.log"))
	require.NoError(t, err)
	require.Contains(t, string(logBytes), "ran with:")
}

func TestTranscoderRunFailurePropagatesExitError(t *testing.T) {
	scratchDir := t.TempDir()
	ffmpegPath := fakeFFmpeg(t, 1)

	tc := transcode.NewTranscoder(ffmpegPath, discardLogger())

	err := tc.Run(context.Background(), scratchDir, filepath.Join(scratchDir, "__raw.mp4"),
		filepath.Join(scratchDir, "out.mp4"), transcode.Plan{})
	require.Error(t, err)

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
}
