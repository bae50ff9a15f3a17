// Package dispatcher implements the Dispatcher (C8): walks one or more
// roots via a SourceBackend, fans each candidate file out to a bounded
// worker pool, and drives it through a VideoProcessor. It is the
// top-level orchestrator cmd/faststart builds and runs once per
// invocation.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/legnaleurc/faststart/internal/cache"
	"github.com/legnaleurc/faststart/internal/model"
	"github.com/legnaleurc/faststart/internal/probe"
	"github.com/legnaleurc/faststart/internal/processor"
	"github.com/legnaleurc/faststart/internal/sink"
	"github.com/legnaleurc/faststart/internal/source"
	"github.com/legnaleurc/faststart/internal/transcode"
)

// progressInterval is how often the TTY progress line refreshes, matching
// the teacher's CLI table printers' human-readable cadence.
const progressInterval = 2 * time.Second

// Dispatcher owns one migration run: a bounded pool of jobs pulling items
// from a Source and driving each through a Processor.
type Dispatcher struct {
	Roots       []string
	Jobs        int
	ScratchRoot string

	Cache      cache.Cache
	Source     source.Source
	Sink       sink.Sink
	Probe      probe.Probe
	Transcoder *transcode.Transcoder
	Modes      processor.Modes

	Logger *slog.Logger
}

// counters tallies run outcomes for the progress line and the final
// summary log line.
type counters struct {
	walked    atomic.Int64
	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// Run walks Roots and processes every video candidate found, blocking
// until the walk and all in-flight jobs finish (or ctx is canceled).
// Returns a non-nil error only for a walk-initiation or worker-pool-level
// failure — individual item failures are logged and do not abort the run,
// matching the reference engine's batch-resilience contract.
func (d *Dispatcher) Run(ctx context.Context) error {
	runID := uuid.NewString()
	logger := d.Logger.With(slog.String("run_id", runID))

	logger.Info("dispatcher starting", slog.Any("roots", d.Roots), slog.Int("jobs", d.Jobs))

	walkCh, err := d.Source.Walk(ctx, d.Roots)
	if err != nil {
		return fmt.Errorf("dispatcher: starting walk: %w", err)
	}

	var c counters

	stopProgress := make(chan struct{})
	progressDone := make(chan struct{})

	go d.reportProgress(&c, stopProgress, progressDone)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Jobs)

	for entry := range walkCh {
		if entry.Err != nil {
			logger.Warn("walk entry error", slog.String("error", entry.Err.Error()))
			c.failed.Add(1)

			continue
		}

		item := entry.Item
		c.walked.Add(1)

		variant, ok := processor.VariantFor(item.MimeType)
		if !ok {
			logger.Debug("skipping non-video item", slog.String("name", item.Name), slog.String("mime_type", item.MimeType))
			c.skipped.Add(1)

			continue
		}

		g.Go(func() error {
			d.runJob(gctx, logger, &c, item, variant)
			return nil
		})
	}

	waitErr := g.Wait()

	close(stopProgress)
	<-progressDone

	logger.Info("dispatcher finished",
		slog.Int64("walked", c.walked.Load()),
		slog.Int64("processed", c.processed.Load()),
		slog.Int64("skipped", c.skipped.Load()),
		slog.Int64("failed", c.failed.Load()),
	)

	if waitErr != nil {
		return fmt.Errorf("dispatcher: worker pool: %w", waitErr)
	}

	return nil
}

// runJob builds a Processor for item's variant and runs it, recovering
// from any panic raised inside the processor or its collaborators so one
// bad item never aborts the rest of the batch — mirroring the teacher's
// safeExecuteAction wrapper around per-item work.
func (d *Dispatcher) runJob(ctx context.Context, logger *slog.Logger, c *counters, item model.FileItem, variant processor.Variant) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("item panicked, recovered", slog.String("id", item.ID), slog.Any("panic", r))
			c.failed.Add(1)
		}
	}()

	p := processor.New(d.ScratchRoot, d.Cache, d.Source, d.Sink, d.Probe, d.Transcoder, d.Modes, logger)

	did, err := p.Process(ctx, item, variant)
	if err != nil {
		logger.Error("item failed", slog.String("id", item.ID), slog.String("name", item.Name), slog.String("error", err.Error()))
		c.failed.Add(1)

		return
	}

	if !did {
		c.skipped.Add(1)
		return
	}

	c.processed.Add(1)
}

// reportProgress writes a one-line progress summary to stderr every
// progressInterval, only when stderr is a terminal — piped/logged runs
// stay line-oriented, matching the teacher's CLI table printers' own
// isatty guard. Returns (closing done) once stop is closed.
func (d *Dispatcher) reportProgress(c *counters, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if !isatty.IsTerminal(os.Stderr.Fd()) {
		<-stop
		return
	}

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			fmt.Fprintln(os.Stderr)
			return
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "\rprocessed=%d skipped=%d failed=%d",
				c.processed.Load(), c.skipped.Load(), c.failed.Load())
		}
	}
}
