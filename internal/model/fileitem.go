// Package model defines the value types shared across source, sink, cache,
// and processor packages.
package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// OctetStream is the MIME type used when a file's type cannot be determined.
const OctetStream = "application/octet-stream"

// FileItem is a uniform, immutable descriptor of a candidate source file.
// Two items are equal iff their IDs are equal; the ID is the cache key.
type FileItem struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// LocalID derives the stable id for a local filesystem path: the SHA-256 of
// the absolute path, hex-encoded. Moving a file changes its id and
// invalidates any cache entry keyed on the old path — accepted, not repaired.
func LocalID(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two items share the same cache key.
func (f FileItem) Equal(other FileItem) bool {
	return f.ID == other.ID
}

// WithMimeType returns a copy of f with mime type overridden if mt is set.
func (f FileItem) WithMimeType(mt string) FileItem {
	if mt == "" {
		return f
	}

	f.MimeType = mt

	return f
}
