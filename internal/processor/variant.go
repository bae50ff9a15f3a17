package processor

import "strings"

// Variant names a processor's output-naming and faststart-detection
// strategy, keyed by source mime type. MP4 keeps the original name and
// trusts the probed faststart bit; every other variant always re-muxes
// (or transcodes) into a sibling .mp4 and never trusts a probed faststart
// bit, since only a true MP4 container can be faststart in the first
// place.
type Variant int

const (
	// VariantMP4 covers video/mp4: output keeps the source's name, and
	// the probed IsFaststart bit is trusted as-is.
	VariantMP4 Variant = iota

	// VariantMKV covers video/x-matroska: always remuxed into a sibling
	// .mp4, IsFaststart forced false (an MKV container is never
	// "faststart" regardless of what the remux would produce).
	VariantMKV

	// VariantMaybeH264 covers containers (AVI, MOV, MPEG) whose stream
	// codecs are genuinely unknown until probed — a transcode may or may
	// not be needed depending on what's inside.
	VariantMaybeH264

	// VariantNeverH264 covers WMV: in practice its video stream is never
	// H.264, so a transcode always follows probe — identical behavior to
	// VariantMaybeH264 today, kept as a distinct tag because the two
	// containers have different codec-family expectations even though
	// the current processing logic treats them the same.
	VariantNeverH264
)

// mimeToVariant maps a source item's mime type to its processor variant.
// Unlisted mime types are not video and are skipped entirely by the
// dispatcher before a processor is ever created.
var mimeToVariant = map[string]Variant{
	"video/mp4":        VariantMP4,
	"video/x-matroska": VariantMKV,
	"video/x-msvideo":  VariantMaybeH264,
	"video/quicktime":  VariantMaybeH264,
	"video/mpeg":       VariantMaybeH264,
	"video/x-ms-wmv":   VariantNeverH264,
}

// VariantFor looks up the processor variant for a mime type, reporting
// false if the mime type is not a recognized video container.
func VariantFor(mimeType string) (Variant, bool) {
	v, ok := mimeToVariant[strings.ToLower(mimeType)]
	return v, ok
}

// outputName returns the transcoded/remuxed output's basename for a
// given source name, per variant.
func (v Variant) outputName(sourceName string) string {
	if v == VariantMP4 {
		return sourceName
	}

	ext := fileExt(sourceName)
	base := strings.TrimSuffix(sourceName, ext)

	return base + ".mp4"
}

// forcesNonFaststart reports whether this variant always treats a probe's
// IsFaststart result as false regardless of what was measured — true for
// every variant except MP4, where a container's own atom layout is
// meaningful.
func (v Variant) forcesNonFaststart() bool {
	return v != VariantMP4
}

func fileExt(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}

	return name[i:]
}
