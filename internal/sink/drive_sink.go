package sink

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"sync"
	"time"

	"github.com/legnaleurc/faststart/internal/driveapi"
	"github.com/legnaleurc/faststart/internal/model"
)

// DailyQuotaBytes is the advisory daily upload ceiling the processor
// checks at the start of each job. It is advisory, not enforced
// atomically: concurrent workers may each pass the check and push total
// usage slightly over the line before the next check observes it.
const DailyQuotaBytes = 500 * 1024 * 1024 * 1024

// syncPollInterval is how long DriveSink waits between sync drains while
// confirming a rename, restore, or delete has propagated.
const syncPollInterval = 1 * time.Second

// DriveSink stores processed files back to the drive, either at the
// origin's own location (same_location) or as a new, separately-located
// upload. Same-location stores use a rename-hide -> upload -> verify ->
// delete-origin protocol so a crash mid-migration never leaves two copies
// under the original name: the original is hidden under a "__"-prefixed
// name before the upload, and between the upload and the delete both the
// hidden original and the new upload exist.
type DriveSink struct {
	client       *driveapi.Client
	sameLocation bool
	logger       *slog.Logger

	mu     sync.Mutex
	cursor string
}

// NewDriveSink creates a DriveSink. sameLocation selects the
// rename/upload/verify/delete protocol; when false, Store uploads
// alongside the origin without touching it.
func NewDriveSink(client *driveapi.Client, sameLocation bool, logger *slog.Logger) *DriveSink {
	return &DriveSink{client: client, sameLocation: sameLocation, logger: logger}
}

// Store uploads localPath and, for a same-location sink, retires the
// origin item once the upload is verified.
func (s *DriveSink) Store(ctx context.Context, localPath string, origin model.FileItem, mediaInfo MediaInfo) (model.FileItem, error) {
	if s.sameLocation {
		return s.storeSameLocation(ctx, localPath, origin, mediaInfo)
	}

	return s.storeDifferentLocation(ctx, localPath, origin, mediaInfo)
}

// QuotaUsed reports the drive's rolling 24-hour upload total.
func (s *DriveSink) QuotaUsed(ctx context.Context) (int64, error) {
	return s.client.DailyUsage(ctx)
}

func (s *DriveSink) storeSameLocation(ctx context.Context, localPath string, origin model.FileItem, mediaInfo MediaInfo) (model.FileItem, error) {
	originItem, err := s.client.GetItem(ctx, origin.ID)
	if err != nil {
		return model.FileItem{}, fmt.Errorf("sink: fetching origin %s: %w", origin.ID, err)
	}

	if err := s.renameHide(ctx, originItem); err != nil {
		return model.FileItem{}, err
	}

	uploaded, err := s.upload(ctx, localPath, originItem.ParentID, filepath.Base(localPath), mediaInfo)
	if err != nil {
		s.restoreOnFailure(ctx, originItem)
		return model.FileItem{}, err
	}

	if err := s.verify(ctx, localPath, uploaded); err != nil {
		s.restoreOnFailure(ctx, originItem)
		return model.FileItem{}, err
	}

	if err := s.deleteOrigin(ctx, originItem); err != nil {
		s.restoreOnFailure(ctx, originItem)
		return model.FileItem{}, err
	}

	return toFileItem(*uploaded), nil
}

func (s *DriveSink) storeDifferentLocation(ctx context.Context, localPath string, origin model.FileItem, mediaInfo MediaInfo) (model.FileItem, error) {
	originItem, err := s.client.GetItem(ctx, origin.ID)
	if err != nil {
		return model.FileItem{}, fmt.Errorf("sink: fetching origin %s: %w", origin.ID, err)
	}

	uploaded, err := s.upload(ctx, localPath, originItem.ParentID, filepath.Base(localPath), mediaInfo)
	if err != nil {
		return model.FileItem{}, err
	}

	if err := s.verify(ctx, localPath, uploaded); err != nil {
		return model.FileItem{}, err
	}

	return origin, nil
}

func (s *DriveSink) upload(ctx context.Context, localPath, parentID, name string, mediaInfo MediaInfo) (*driveapi.Item, error) {
	s.logger.Info("uploading", slog.String("path", localPath), slog.String("name", name))

	mimeType := mime.TypeByExtension(filepath.Ext(localPath))
	if mimeType == "" {
		mimeType = model.OctetStream
	}

	description := fmt.Sprintf("video=%s audio=%s", mediaInfo.VideoCodec, mediaInfo.AudioCodec)

	uploaded, err := s.client.UploadFile(ctx, parentID, name, mimeType, description, localPath)
	if err != nil {
		return nil, fmt.Errorf("sink: uploading %s: %w", localPath, err)
	}

	s.logger.Info("uploaded", slog.String("id", uploaded.ID))

	return uploaded, nil
}

func (s *DriveSink) verify(ctx context.Context, localPath string, uploaded *driveapi.Item) error {
	s.logger.Info("verifying", slog.String("path", localPath))

	localHash, err := driveapi.ComputeQuickXorHash(localPath)
	if err != nil {
		return fmt.Errorf("sink: hashing %s: %w", localPath, err)
	}

	remoteHash := uploaded.SelectHash()
	if remoteHash != "" && localHash != remoteHash {
		s.logger.Warn("hash mismatch, removing upload", slog.String("id", uploaded.ID))

		if err := s.client.TrashItem(ctx, uploaded.ID); err != nil {
			s.logger.Warn("failed to remove mismatched upload",
				slog.String("id", uploaded.ID), slog.String("error", err.Error()))
		}

		return ErrHashMismatch
	}

	s.logger.Info("verified", slog.String("hash", remoteHash))

	return nil
}

// renameHide renames origin to a "__"-prefixed name and blocks until the
// drive's sync stream confirms the rename is visible, so a concurrent
// walker never observes both the hidden original and a not-yet-finished
// upload under the same visible name.
func (s *DriveSink) renameHide(ctx context.Context, origin *driveapi.Item) error {
	hiddenName := "__" + origin.Name

	if _, err := s.client.MoveItem(ctx, origin.ID, "", hiddenName); err != nil {
		return fmt.Errorf("sink: renaming %s to hide: %w", origin.Name, err)
	}

	return s.waitForName(ctx, origin.ID, hiddenName, func(current string) bool { return current == hiddenName })
}

// restoreOnFailure reverses renameHide after a failed upload, verify or
// delete of the origin. It
// logs rather than returns its own error: the caller already has the
// failure that triggered the restore and that is the error the operation
// should surface.
func (s *DriveSink) restoreOnFailure(ctx context.Context, origin *driveapi.Item) {
	if _, err := s.client.MoveItem(ctx, origin.ID, "", origin.Name); err != nil {
		s.logger.Error("failed to restore origin name after upload failure",
			slog.String("id", origin.ID), slog.String("error", err.Error()))

		return
	}

	if err := s.waitForName(ctx, origin.ID, origin.Name, func(current string) bool { return current == origin.Name }); err != nil {
		s.logger.Error("failed to confirm restore", slog.String("id", origin.ID), slog.String("error", err.Error()))
	}
}

func (s *DriveSink) deleteOrigin(ctx context.Context, origin *driveapi.Item) error {
	s.logger.Info("removing origin", slog.String("name", origin.Name))

	if err := s.client.TrashItem(ctx, origin.ID); err != nil {
		return fmt.Errorf("sink: trashing origin %s: %w", origin.ID, err)
	}

	if err := s.drainSync(ctx); err != nil {
		s.logger.Warn("sync drain after delete failed", slog.String("error", err.Error()))
	}

	s.logger.Info("removed origin", slog.String("name", origin.Name))

	return nil
}

// waitForName polls the drive's change stream and re-fetches id until
// matches reports true, confirming a rename has propagated before the
// caller proceeds to the next step of the protocol.
func (s *DriveSink) waitForName(ctx context.Context, id, expectName string, matches func(string) bool) error {
	for {
		if err := s.drainSync(ctx); err != nil {
			return fmt.Errorf("sink: draining sync while confirming rename to %s: %w", expectName, err)
		}

		current, err := s.client.GetItem(ctx, id)
		if err != nil {
			return fmt.Errorf("sink: re-fetching %s while confirming rename: %w", id, err)
		}

		if matches(current.Name) {
			return nil
		}

		if err := sleepCtx(ctx, syncPollInterval); err != nil {
			return err
		}
	}
}

func (s *DriveSink) drainSync(ctx context.Context) error {
	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	next, err := s.client.Sync(ctx, cursor)
	if err != nil {
		return err //nolint:wrapcheck // caller adds context
	}

	s.mu.Lock()
	s.cursor = next
	s.mu.Unlock()

	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // context sentinel is informative as-is
	case <-timer.C:
		return nil
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

var _ Sink = (*DriveSink)(nil)
