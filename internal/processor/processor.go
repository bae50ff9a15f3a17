// Package processor implements the VideoProcessor (C7) state machine:
// given one candidate file, decide whether it needs remuxing,
// transcoding, or nothing, and drive it through probe, optional
// transcode, and store.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/legnaleurc/faststart/internal/cache"
	"github.com/legnaleurc/faststart/internal/model"
	"github.com/legnaleurc/faststart/internal/probe"
	"github.com/legnaleurc/faststart/internal/sink"
	"github.com/legnaleurc/faststart/internal/source"
	"github.com/legnaleurc/faststart/internal/transcode"
)

// Modes selects which of the three mutually exclusive run modes gate
// processing past the probe step: full (zero value), remux-only,
// transcode-only, or cache-only. At most one of these is ever true.
type Modes struct {
	RemuxOnly     bool
	TranscodeOnly bool
	CacheOnly     bool
}

// Processor drives one item through the full migration state machine.
type Processor struct {
	scratchRoot string
	cache       cache.Cache
	source      source.Source
	sink        sink.Sink
	probe       probe.Probe
	transcoder  *transcode.Transcoder
	logger      *slog.Logger
	modes       Modes
}

// New creates a Processor. scratchRoot is the parent directory under
// which each item gets its own "<item-id>" working subdirectory, removed
// when processing finishes.
func New(
	scratchRoot string,
	c cache.Cache,
	src source.Source,
	snk sink.Sink,
	pr probe.Probe,
	tc *transcode.Transcoder,
	modes Modes,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		scratchRoot: scratchRoot,
		cache:       c,
		source:      src,
		sink:        snk,
		probe:       pr,
		transcoder:  tc,
		modes:       modes,
		logger:      logger,
	}
}

// DailyQuotaBytes re-exports sink.DailyQuotaBytes so callers of this
// package don't need to import sink solely for the constant.
const DailyQuotaBytes = sink.DailyQuotaBytes

// Process runs the full state machine for one item and variant. It
// returns (didWork, error): didWork is true whenever the item entered the
// scratch section (fetched and probed, even if the fetch or probe failed
// or no transcode followed), matching the reference
// engine's progress-accounting contract — "true" means "this item is
// accounted for", not "this item was re-encoded".
func (p *Processor) Process(ctx context.Context, item model.FileItem, variant Variant) (bool, error) {
	migrated, err := p.cache.IsMigrated(ctx, item)
	if err != nil {
		return false, fmt.Errorf("processor: checking migrated state for %s: %w", item.ID, err)
	}

	if migrated {
		p.logger.Info("already migrated, skip", slog.String("id", item.ID), slog.String("name", item.Name))
		return false, nil
	}

	hasCache, err := p.cache.HasCache(ctx, item)
	if err != nil {
		return false, fmt.Errorf("processor: checking cache for %s: %w", item.ID, err)
	}

	if hasCache {
		needTranscode, err := p.cache.NeedTranscode(ctx, item)
		if err != nil {
			return false, fmt.Errorf("processor: checking transcode need for %s: %w", item.ID, err)
		}

		if p.modes.TranscodeOnly && !needTranscode {
			p.logger.Info("no need transcode, skip", slog.String("id", item.ID))
			return false, nil
		}

		if p.modes.RemuxOnly && needTranscode {
			p.logger.Info("need transcode, skip", slog.String("id", item.ID))
			return false, nil
		}

		if p.modes.CacheOnly {
			p.logger.Info("already cached, skip", slog.String("id", item.ID))
			return false, nil
		}
	}

	if !p.modes.CacheOnly {
		used, err := p.sink.QuotaUsed(ctx)
		if err != nil {
			return false, fmt.Errorf("processor: checking quota for %s: %w", item.ID, err)
		}

		if used+item.Size >= DailyQuotaBytes {
			p.logger.Info("not enough quota, skip", slog.String("id", item.ID))
			return false, nil
		}
	}

	scratchDir := filepath.Join(p.scratchRoot, item.ID)
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return false, fmt.Errorf("processor: creating scratch dir %s: %w", scratchDir, err)
	}

	defer func() {
		if err := os.RemoveAll(scratchDir); err != nil {
			p.logger.Warn("failed to remove scratch dir", slog.String("dir", scratchDir), slog.String("error", err.Error()))
		} else {
			p.logger.Info("deleted scratch dir", slog.String("dir", scratchDir))
		}
	}()

	rawPath := filepath.Join(scratchDir, "__"+item.Name)

	if err := p.download(ctx, item, scratchDir, rawPath); err != nil {
		p.logger.Error("download failed", slog.String("id", item.ID), slog.String("error", err.Error()))
		return true, nil
	}

	result, err := p.probe.Probe(ctx, rawPath)
	if err != nil {
		p.logger.Error("ffmpeg probe failed", slog.String("id", item.ID), slog.String("error", err.Error()))
		return true, nil
	}

	if variant.forcesNonFaststart() {
		result.IsFaststart = false
	}

	isNativeCodec := result.IsNativeCodec()

	if result.IsFaststart && isNativeCodec {
		p.logger.Info("nothing to do, skip", slog.String("id", item.ID))

		if err := p.cache.SetCache(ctx, item, true, true); err != nil {
			return true, fmt.Errorf("processor: recording no-op cache state for %s: %w", item.ID, err)
		}

		if err := p.cache.SetMigrated(ctx, item); err != nil {
			return true, fmt.Errorf("processor: recording no-op migration for %s: %w", item.ID, err)
		}

		return true, nil
	}

	if err := p.cache.SetCache(ctx, item, result.IsFaststart, isNativeCodec); err != nil {
		return true, fmt.Errorf("processor: recording probe result for %s: %w", item.ID, err)
	}

	if p.modes.RemuxOnly && !isNativeCodec {
		p.logger.Info("need transcode, skip", slog.String("id", item.ID))
		return true, nil
	}

	if p.modes.TranscodeOnly && isNativeCodec {
		p.logger.Info("no need transcode, skip", slog.String("id", item.ID))
		return true, nil
	}

	if p.modes.CacheOnly {
		p.logger.Info("cached, skip", slog.String("id", item.ID))
		return true, nil
	}

	p.logger.Info("item info",
		slog.String("id", item.ID),
		slog.String("name", item.Name),
		slog.Bool("is_faststart", result.IsFaststart),
		slog.String("video_codec", result.VideoCodec),
		slog.String("audio_codec", result.AudioCodec),
	)

	outputPath := filepath.Join(scratchDir, variant.outputName(item.Name))

	plan := transcode.Plan{CopyVideo: result.IsH264(), CopyAudio: result.IsAAC()}

	if err := p.transcoder.Run(ctx, scratchDir, rawPath, outputPath, plan); err != nil {
		p.logger.Error("ffmpeg failed", slog.String("id", item.ID), slog.String("error", err.Error()))
		return true, nil
	}

	finalInfo, err := p.probe.Probe(ctx, outputPath)
	if err != nil {
		p.logger.Error("post-transcode probe failed", slog.String("id", item.ID), slog.String("error", err.Error()))
		return true, nil
	}

	mediaInfo := sink.MediaInfo{VideoCodec: finalInfo.VideoCodec, AudioCodec: finalInfo.AudioCodec}

	storedItem, err := p.sink.Store(ctx, outputPath, item, mediaInfo)
	if err != nil {
		p.logger.Error("store failed", slog.String("id", item.ID), slog.String("error", err.Error()))
		return true, nil
	}

	if storedItem.ID != item.ID {
		if err := p.cache.UnsetCache(ctx, item); err != nil {
			p.logger.Warn("failed to unset stale cache entry",
				slog.String("id", item.ID), slog.String("error", err.Error()))
		}
	}

	if err := p.cache.SetCache(ctx, storedItem, true, true); err != nil {
		return true, fmt.Errorf("processor: recording cache state for %s: %w", storedItem.ID, err)
	}

	if err := p.cache.SetMigrated(ctx, storedItem); err != nil {
		return true, fmt.Errorf("processor: recording migration for %s: %w", storedItem.ID, err)
	}

	return true, nil
}

// download fetches item into scratchDir and renames it to the raw
// working path the probe and transcoder both expect, matching the
// original engine's download-then-rename-to-__name convention.
func (p *Processor) download(ctx context.Context, item model.FileItem, scratchDir, rawPath string) error {
	p.logger.Info("fetching", slog.String("name", item.Name))

	fetchedPath, err := p.source.Fetch(ctx, item, scratchDir)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", item.Name, err)
	}

	if fetchedPath != rawPath {
		if err := os.Rename(fetchedPath, rawPath); err != nil {
			return fmt.Errorf("renaming fetched file to %s: %w", rawPath, err)
		}
	}

	p.logger.Info("fetched", slog.String("name", item.Name))

	return nil
}
