// Package source implements the SourceBackend (C3): walking one or more
// roots for candidate files and fetching a chosen item's bytes to a local
// scratch directory.
package source

import (
	"context"
	"errors"

	"github.com/legnaleurc/faststart/internal/model"
)

// FetchError wraps any I/O or transport error encountered while fetching an
// item's bytes to a local destination directory.
type FetchError struct {
	ItemID string
	Err    error
}

func (e *FetchError) Error() string {
	return "source: fetching " + e.ItemID + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrTrashed marks an item the backend reports as trashed; Walk skips these
// without yielding them.
var ErrTrashed = errors.New("source: item is trashed")

// WalkEntry is either a FileItem or an error encountered while walking —
// a single error does not abort the rest of the walk.
type WalkEntry struct {
	Item model.FileItem
	Err  error
}

// Source is the backend contract: walk a set of roots, fetch an item's
// bytes to a local directory.
type Source interface {
	// Walk yields every regular file under roots, recursively, skipping
	// any source-flagged trashed items. The returned channel closes when
	// the walk is exhausted or ctx is canceled.
	Walk(ctx context.Context, roots []string) (<-chan WalkEntry, error)

	// Fetch downloads/copies the full bytes of item into destDir and
	// returns the exact path written.
	Fetch(ctx context.Context, item model.FileItem, destDir string) (string, error)
}
