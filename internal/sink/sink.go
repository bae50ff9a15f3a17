// Package sink implements the SinkBackend (C4): storing a processed,
// local file back to its final destination and reporting quota usage.
package sink

import (
	"context"
	"errors"

	"github.com/legnaleurc/faststart/internal/model"
)

// ErrHashMismatch is returned when an uploaded file's server-reported hash
// does not match the hash computed from the local file before upload. The
// sink has already rolled back any partial upload before returning this.
var ErrHashMismatch = errors.New("sink: uploaded content hash does not match local file")

// Sink is the backend contract: store a processed local file and report
// the backend's current quota consumption.
type Sink interface {
	// Store persists localPath as the final artifact for origin, given the
	// probed media info that produced it, and returns the FileItem
	// representing the stored result (the newly uploaded item when the
	// sink replaces origin at its own location; origin itself when the
	// sink writes elsewhere).
	Store(ctx context.Context, localPath string, origin model.FileItem, mediaInfo MediaInfo) (model.FileItem, error)

	// QuotaUsed reports bytes consumed against the backend's daily quota,
	// advisory only under concurrent use.
	QuotaUsed(ctx context.Context) (int64, error)
}

// MediaInfo carries the subset of probe output a sink needs to tag a
// stored item (e.g. an upload description field), without importing the
// probe package back into sink.
type MediaInfo struct {
	VideoCodec string
	AudioCodec string
}
