package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// FFProbe shells out to the real ffprobe binary for stream codec
// inspection. There is no Go-native MediaInfo/ffprobe binding anywhere in
// this module's dependency set, and ffprobe is an expected external
// process for this engine (alongside ffmpeg) rather than a dependency
// gap — so this probe execs the binary directly instead of linking a
// library.
type FFProbe struct {
	binary string
	logger *slog.Logger
}

// NewFFProbe creates an FFProbe using the given ffprobe binary name or
// path (resolved via PATH lookup at exec time if not absolute).
func NewFFProbe(binary string, logger *slog.Logger) *FFProbe {
	if binary == "" {
		binary = "ffprobe"
	}

	return &FFProbe{binary: binary, logger: logger}
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
}

// Probe runs ffprobe to extract stream codecs and separately inspects the
// file's own atom layout to determine faststart status.
func (p *FFProbe) Probe(ctx context.Context, path string) (Result, error) {
	faststart, err := IsFaststart(path)
	if err != nil {
		return Result{}, fmt.Errorf("probe: checking atom layout of %s: %w", path, err)
	}

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		path,
	)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("probe: running ffprobe on %s: %w (stderr: %s)", path, err, stderr.String())
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Result{}, fmt.Errorf("probe: decoding ffprobe output for %s: %w", path, err)
	}

	result := Result{IsFaststart: faststart}

	for _, stream := range out.Streams {
		codec := strings.ToLower(stream.CodecName)

		switch stream.CodecType {
		case "video":
			result.VideoCodecs = append(result.VideoCodecs, codec)

			if result.VideoCodec == "" {
				result.VideoCodec = codec
			}
		case "audio":
			result.AudioCodecs = append(result.AudioCodecs, codec)

			if result.AudioCodec == "" {
				result.AudioCodec = codec
			}
		}
	}

	p.logger.Debug("probed file",
		slog.String("path", path),
		slog.Bool("faststart", result.IsFaststart),
		slog.String("video_codec", result.VideoCodec),
		slog.String("audio_codec", result.AudioCodec),
	)

	return result, nil
}

var _ Probe = (*FFProbe)(nil)
