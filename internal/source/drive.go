package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/legnaleurc/faststart/internal/driveapi"
	"github.com/legnaleurc/faststart/internal/model"
)

// DriveSource walks a remote drive tree through a driveapi.Client.
type DriveSource struct {
	client *driveapi.Client
	logger *slog.Logger
}

// NewDriveSource creates a DriveSource backed by client.
func NewDriveSource(client *driveapi.Client, logger *slog.Logger) *DriveSource {
	return &DriveSource{client: client, logger: logger}
}

// Walk performs a breadth-first traversal of roots, yielding every
// non-trashed, non-folder descendant. A root is itself a folder or file id;
// if it is a file id, it is yielded as a single-element walk.
func (s *DriveSource) Walk(ctx context.Context, roots []string) (<-chan WalkEntry, error) {
	out := make(chan WalkEntry)

	go func() {
		defer close(out)

		for _, root := range roots {
			if ctx.Err() != nil {
				return
			}

			if !s.walkOne(ctx, root, out) {
				return
			}
		}
	}()

	return out, nil
}

func (s *DriveSource) walkOne(ctx context.Context, rootID string, out chan<- WalkEntry) bool {
	root, err := s.client.GetItem(ctx, rootID)
	if err != nil {
		return s.emit(ctx, out, WalkEntry{Err: fmt.Errorf("source: fetching root %s: %w", rootID, err)})
	}

	if !root.IsFolder {
		if root.IsTrashed {
			return true
		}

		return s.emit(ctx, out, WalkEntry{Item: toFileItem(*root)})
	}

	queue := []string{rootID}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			return false
		}

		dirID := queue[0]
		queue = queue[1:]

		children, err := s.client.ListChildren(ctx, dirID)
		if err != nil {
			if !s.emit(ctx, out, WalkEntry{Err: fmt.Errorf("source: listing children of %s: %w", dirID, err)}) {
				return false
			}

			continue
		}

		for _, child := range children {
			if child.IsTrashed {
				continue
			}

			if child.IsFolder {
				queue = append(queue, child.ID)
				continue
			}

			if !s.emit(ctx, out, WalkEntry{Item: toFileItem(child)}) {
				return false
			}
		}
	}

	return true
}

// emit sends entry on out, returning false if ctx was canceled first.
func (s *DriveSource) emit(ctx context.Context, out chan<- WalkEntry, entry WalkEntry) bool {
	select {
	case out <- entry:
		return true
	case <-ctx.Done():
		return false
	}
}

func toFileItem(item driveapi.Item) model.FileItem {
	mimeType := item.MimeType
	if mimeType == "" {
		mimeType = model.OctetStream
	}

	return model.FileItem{
		ID:       item.ID,
		Name:     item.Name,
		MimeType: mimeType,
		Size:     item.Size,
	}
}

// Fetch downloads item's bytes into destDir under its own basename and
// returns the written path. Returns ErrTrashed if the item has since been
// trashed remotely.
func (s *DriveSource) Fetch(ctx context.Context, item model.FileItem, destDir string) (string, error) {
	remote, err := s.client.GetItem(ctx, item.ID)
	if err != nil {
		if errors.Is(err, driveapi.ErrNotFound) {
			return "", &FetchError{ItemID: item.ID, Err: ErrTrashed}
		}

		return "", &FetchError{ItemID: item.ID, Err: err}
	}

	if remote.IsTrashed {
		return "", &FetchError{ItemID: item.ID, Err: ErrTrashed}
	}

	destPath := filepath.Join(destDir, item.Name)

	if err := s.client.DownloadFile(ctx, *remote, destPath); err != nil {
		return "", &FetchError{ItemID: item.ID, Err: err}
	}

	return destPath, nil
}

var _ Source = (*DriveSource)(nil)
