package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/legnaleurc/faststart/internal/model"
)

// LocalSink copies processed files into a local output directory. It never
// touches a drive and reports zero quota usage.
type LocalSink struct {
	outputDir string
	logger    *slog.Logger
}

// NewLocalSink creates a LocalSink writing into outputDir, created on
// first Store if missing.
func NewLocalSink(outputDir string, logger *slog.Logger) *LocalSink {
	return &LocalSink{outputDir: outputDir, logger: logger}
}

// Store copies localPath into the sink's output directory under its own
// basename and returns origin unchanged. mediaInfo is accepted for
// interface conformance and ignored — a local sink has no remote metadata
// to attach.
func (s *LocalSink) Store(_ context.Context, localPath string, origin model.FileItem, _ MediaInfo) (model.FileItem, error) {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return model.FileItem{}, fmt.Errorf("sink: creating output dir %s: %w", s.outputDir, err)
	}

	dest := filepath.Join(s.outputDir, filepath.Base(localPath))

	s.logger.Info("copying to output", slog.String("src", localPath), slog.String("dest", dest))

	if err := copyFile(localPath, dest); err != nil {
		return model.FileItem{}, fmt.Errorf("sink: copying %s to %s: %w", localPath, dest, err)
	}

	s.logger.Info("copied to output", slog.String("dest", dest))

	return origin, nil
}

// QuotaUsed always reports zero: a local filesystem sink has no daily
// upload quota.
func (s *LocalSink) QuotaUsed(_ context.Context) (int64, error) {
	return 0, nil
}

func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copying: %w", err)
	}

	if err := dst.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", destPath, err)
	}

	if info, statErr := src.Stat(); statErr == nil {
		_ = os.Chtimes(destPath, info.ModTime(), info.ModTime())
	}

	return nil
}

var _ Sink = (*LocalSink)(nil)
