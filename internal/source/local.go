package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/legnaleurc/faststart/internal/model"
)

// LocalSource walks a local filesystem tree. Names are normalized to
// Unicode NFC so comparisons against a drive's NFC-normalized names behave
// consistently on case-sensitive filesystems with NFD-decomposed names.
//
// model.LocalID is a one-way hash of a file's absolute path, so Fetch
// cannot recompute the path from an item's id alone. LocalSource keeps a
// path index populated as Walk discovers each item; it lives for the
// process lifetime of one run, which matches how the dispatcher uses a
// source — walk once, then fetch each yielded item before the run ends.
type LocalSource struct {
	logger *slog.Logger

	mu    sync.Mutex
	paths map[string]string
}

// NewLocalSource creates a LocalSource.
func NewLocalSource(logger *slog.Logger) *LocalSource {
	return &LocalSource{logger: logger, paths: make(map[string]string)}
}

// Walk yields every regular file under roots in lexicographic path order.
// A root that is itself a regular file is treated as a single-element walk.
func (s *LocalSource) Walk(ctx context.Context, roots []string) (<-chan WalkEntry, error) {
	out := make(chan WalkEntry)

	sortedRoots := make([]string, len(roots))
	copy(sortedRoots, roots)
	sort.Strings(sortedRoots)

	go func() {
		defer close(out)

		for _, root := range sortedRoots {
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

// walkOne walks a single root, returning false if the walk should stop
// (context canceled).
func (s *LocalSource) walkOne(ctx context.Context, root string, out chan<- WalkEntry) bool {
	abs, err := filepath.Abs(root)
	if err != nil {
		out <- WalkEntry{Err: fmt.Errorf("source: resolving %s: %w", root, err)}
		return true
	}

	info, err := os.Stat(abs)
	if err != nil {
		out <- WalkEntry{Err: fmt.Errorf("source: stat %s: %w", abs, err)}
		return true
	}

	if !info.IsDir() {
		item, itemErr := s.toFileItem(abs, info)
		select {
		case out <- WalkEntry{Item: item, Err: itemErr}:
		case <-ctx.Done():
			return false
		}

		return true
	}

	walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			out <- WalkEntry{Err: fmt.Errorf("source: walking %s: %w", path, err)}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		fi, statErr := d.Info()
		if statErr != nil {
			out <- WalkEntry{Err: fmt.Errorf("source: stat %s: %w", path, statErr)}
			return nil
		}

		item, itemErr := s.toFileItem(path, fi)

		select {
		case out <- WalkEntry{Item: item, Err: itemErr}:
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})

	return walkErr == nil || walkErr == ctx.Err() //nolint:errorlint // sentinel comparison against the same ctx
}

func (s *LocalSource) toFileItem(absPath string, info fs.FileInfo) (model.FileItem, error) {
	name := norm.NFC.String(info.Name())
	id := model.LocalID(absPath)

	s.mu.Lock()
	s.paths[id] = absPath
	s.mu.Unlock()

	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = model.OctetStream
	}

	return model.FileItem{
		ID:       id,
		Name:     name,
		MimeType: mimeType,
		Size:     info.Size(),
	}, nil
}

// Fetch copies item's bytes into destDir, preserving its basename, and
// returns the written path.
func (s *LocalSource) Fetch(_ context.Context, item model.FileItem, destDir string) (string, error) {
	srcPath, err := s.resolvePath(item)
	if err != nil {
		return "", &FetchError{ItemID: item.ID, Err: err}
	}

	destPath := filepath.Join(destDir, item.Name)

	if err := copyFile(srcPath, destPath); err != nil {
		return "", &FetchError{ItemID: item.ID, Err: err}
	}

	return destPath, nil
}

// resolvePath looks up the absolute path recorded for item's id during
// Walk. Fetch on an id never yielded by this Source's Walk is a caller
// error.
func (s *LocalSource) resolvePath(item model.FileItem) (string, error) {
	s.mu.Lock()
	path, ok := s.paths[item.ID]
	s.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("source: no known path for item %s (was Walk called first?)", item.ID)
	}

	return path, nil
}

func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(destPath), err)
	}

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copying %s to %s: %w", srcPath, destPath, err)
	}

	if err := dst.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", destPath, err)
	}

	if info, statErr := src.Stat(); statErr == nil {
		_ = os.Chtimes(destPath, info.ModTime(), info.ModTime())
	}

	return nil
}

var _ Source = (*LocalSource)(nil)
