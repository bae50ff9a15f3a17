// Package probe implements the MediaProbe (C5): inspecting a local media
// file to determine whether it is already progressive (moov atom before
// mdat) and whether its video/audio streams are already in the engine's
// native target codecs.
package probe

import (
	"context"
)

// VideoCodecSet is the set of video codec names treated as "native" —
// already acceptable without re-encoding.
var VideoCodecSet = map[string]bool{
	"h264": true,
	"hevc": true,
}

// AudioCodecNative is the audio codec name treated as "native".
const AudioCodecNative = "aac"

// Result is the probe outcome for a single local file.
type Result struct {
	// IsFaststart reports whether the file's moov atom precedes its mdat
	// atom — i.e. whether it is already progressive/streamable.
	IsFaststart bool

	// VideoCodec and AudioCodec are the lowercase codec names of the
	// first video/audio stream, empty if that stream type is absent. Kept
	// for logging and for driving the transcode plan (the first stream is
	// the one ffmpeg maps by default).
	VideoCodec string
	AudioCodec string

	// VideoCodecs and AudioCodecs hold the lowercase codec name of every
	// video/audio stream in the file, in stream order. IsH264/IsAAC
	// quantify over all of them, not just the first.
	VideoCodecs []string
	AudioCodecs []string
}

// IsH264 reports whether every video stream is in the native codec set.
// A file with no video streams reports true vacuously, matching the
// all()-over-empty-iterable semantics of the reference implementation
// this engine was ported from.
func (r Result) IsH264() bool {
	for _, codec := range r.VideoCodecs {
		if !VideoCodecSet[codec] {
			return false
		}
	}

	return true
}

// IsAAC reports whether every audio stream is in the native codec. A
// file with no audio streams reports true vacuously, for the same reason
// as IsH264.
func (r Result) IsAAC() bool {
	for _, codec := range r.AudioCodecs {
		if codec != AudioCodecNative {
			return false
		}
	}

	return true
}

// IsNativeCodec reports whether both streams are already native.
func (r Result) IsNativeCodec() bool {
	return r.IsH264() && r.IsAAC()
}

// Probe inspects a local media file.
type Probe interface {
	Probe(ctx context.Context, path string) (Result, error)
}
