package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/legnaleurc/faststart/internal/cache"
	"github.com/legnaleurc/faststart/internal/config"
	"github.com/legnaleurc/faststart/internal/dispatcher"
	"github.com/legnaleurc/faststart/internal/driveapi"
	"github.com/legnaleurc/faststart/internal/probe"
	"github.com/legnaleurc/faststart/internal/processor"
	"github.com/legnaleurc/faststart/internal/sink"
	"github.com/legnaleurc/faststart/internal/source"
	"github.com/legnaleurc/faststart/internal/transcode"
)

// version is set at build time via ldflags, matching the teacher's own
// root.go convention.
var version = "dev"

// Flags bound in newRootCmd, mirroring the teacher's package-level flag
// variable convention (root.go).
var (
	flagDataPath      string
	flagTmpPath       string
	flagJobs          int
	flagSourceBackend string
	flagSinkBackend   string
	flagOutput        string
	flagRemuxOnly     bool
	flagTranscodeOnly bool
	flagCacheOnly     bool
	flagConfigPath    string
	flagVerbose       bool
	flagDebug         bool
	flagQuiet         bool
	flagLogFormat     string
)

const cacheFileName = "_migrated.sqlite"

// httpClientTimeout bounds metadata calls; transfers use an unbounded
// client instead, exactly as the teacher's root.go splits the two.
const httpClientTimeout = 30 * time.Second

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "faststart ROOT_PATH [ROOT_PATH...]",
		Short:         "Migrate videos to progressive, native-codec MP4",
		Long:          "faststart walks one or more roots, remuxing or transcoding video files into progressive (moov-before-mdat) H.264/AAC MP4, and skips files already in that shape. With --source=drive each root is a drive item id; remote paths are not resolved.",
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadCLIContext(cmd)
		},
		RunE: runMigrate,
	}

	cmd.Flags().StringVar(&flagDataPath, "data-path", "", "directory holding the migration cache (required)")
	cmd.Flags().StringVar(&flagTmpPath, "tmp-path", "", "parent directory for the scratch root (default: OS temp dir)")
	cmd.Flags().IntVarP(&flagJobs, "jobs", "j", 1, "number of concurrent worker jobs")
	cmd.Flags().StringVar(&flagSourceBackend, "source", "drive", "source backend: drive or local")
	cmd.Flags().StringVar(&flagSinkBackend, "sink", "drive", "sink backend: drive or local")
	cmd.Flags().StringVar(&flagOutput, "output", "", "output directory (required iff --sink=local)")
	cmd.Flags().BoolVar(&flagRemuxOnly, "remux-only", false, "only process items that need no transcode")
	cmd.Flags().BoolVar(&flagTranscodeOnly, "transcode-only", false, "only process items that need a transcode")
	cmd.Flags().BoolVar(&flagCacheOnly, "cache-only", false, "only probe and cache results, never transcode or store")
	cmd.Flags().StringVar(&flagConfigPath, "config", "", "config file path (default: ~/.config/faststart/config.toml)")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.Flags().StringVar(&flagLogFormat, "log-format", "text", "log output format: text or json")

	cmd.MarkFlagsMutuallyExclusive("remux-only", "transcode-only", "cache-only")
	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	_ = cmd.MarkFlagRequired("data-path")

	return cmd
}

// loadCLIContext resolves configuration and logger once, before RunE
// fires, and stashes the result in the command's context — the teacher's
// own loadConfig/CLIContext wiring in root.go.
func loadCLIContext(cmd *cobra.Command) error {
	cfg, err := config.Load(resolveConfigPath(), slog.Default())
	if err != nil {
		return fmt.Errorf("faststart: loading config: %w", err)
	}

	cc := &config.CLIContext{Cfg: cfg, Logger: buildLogger(cfg)}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(config.WithCLIContext(ctx, cc))

	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cc := config.CLIContextFrom(cmd.Context())

	cfg := cc.Cfg
	logger := cc.Logger

	ctx := shutdownContext(cmd.Context(), logger)

	if flagSinkBackend == "local" && flagOutput == "" {
		return fmt.Errorf("faststart: --output is required when --sink=local")
	}

	if err := os.MkdirAll(flagDataPath, 0o755); err != nil {
		return fmt.Errorf("faststart: creating data path %s: %w", flagDataPath, err)
	}

	c, err := cache.Open(ctx, filepath.Join(flagDataPath, cacheFileName), logger)
	if err != nil {
		return fmt.Errorf("faststart: opening cache: %w", err)
	}
	defer c.Close()

	var driveClient *driveapi.Client

	if flagSourceBackend == "drive" || flagSinkBackend == "drive" {
		driveClient, err = newDriveClient(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("faststart: connecting to drive: %w", err)
		}

		if _, err := driveClient.Sync(ctx, ""); err != nil {
			return fmt.Errorf("faststart: draining initial sync: %w", err)
		}
	}

	src, err := buildSource(driveClient, logger)
	if err != nil {
		return err
	}

	snk, err := buildSink(driveClient, logger)
	if err != nil {
		return err
	}

	scratchRoot, err := os.MkdirTemp(flagTmpPath, "faststart-")
	if err != nil {
		return fmt.Errorf("faststart: creating scratch root: %w", err)
	}
	defer os.RemoveAll(scratchRoot)

	d := &dispatcher.Dispatcher{
		Roots:       args,
		Jobs:        flagJobs,
		ScratchRoot: scratchRoot,
		Cache:       c,
		Source:      src,
		Sink:        snk,
		Probe:       probe.NewFFProbe("", logger),
		Transcoder:  transcode.NewTranscoder("", logger),
		Modes: processor.Modes{
			RemuxOnly:     flagRemuxOnly,
			TranscodeOnly: flagTranscodeOnly,
			CacheOnly:     flagCacheOnly,
		},
		Logger: logger,
	}

	return d.Run(ctx)
}

func buildSource(driveClient *driveapi.Client, logger *slog.Logger) (source.Source, error) {
	switch flagSourceBackend {
	case "drive":
		return source.NewDriveSource(driveClient, logger), nil
	case "local":
		return source.NewLocalSource(logger), nil
	default:
		return nil, fmt.Errorf("faststart: unknown --source %q (want drive or local)", flagSourceBackend)
	}
}

func buildSink(driveClient *driveapi.Client, logger *slog.Logger) (sink.Sink, error) {
	switch flagSinkBackend {
	case "drive":
		sameLocation := flagSourceBackend == "drive"
		return sink.NewDriveSink(driveClient, sameLocation, logger), nil
	case "local":
		return sink.NewLocalSink(flagOutput, logger), nil
	default:
		return nil, fmt.Errorf("faststart: unknown --sink %q (want drive or local)", flagSinkBackend)
	}
}

func newDriveClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*driveapi.Client, error) {
	auth := driveapi.AuthConfig{
		ClientID: cfg.Drive.ClientID,
		Scopes:   cfg.Scopes(),
		Endpoint: cfg.Endpoint(),
	}

	tokenPath := cfg.Drive.TokenPath
	if tokenPath == "" {
		return nil, fmt.Errorf("faststart: drive.token_path is not configured")
	}

	ts, err := driveapi.TokenSourceFromPath(ctx, auth, tokenPath, logger)
	if err != nil {
		return nil, fmt.Errorf("faststart: loading drive token: %w", err)
	}

	baseURL := cfg.Drive.BaseURL
	if baseURL == "" {
		baseURL = driveapi.DefaultBaseURL
	}

	httpClient := &http.Client{Timeout: httpClientTimeout}

	return driveapi.NewClient(baseURL, httpClient, ts, logger), nil
}

func resolveConfigPath() string {
	if flagConfigPath != "" {
		return flagConfigPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "faststart", "config.toml")
}

// buildLogger creates an slog.Logger from CLI flags layered over the
// config file's [logging] section, exactly as the teacher's root.go
// buildLogger does: config-file level is the baseline, CLI flags
// (mutually exclusive) always win.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn
	format := flagLogFormat

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		if !flagsChangedLogFormat() && cfg.Logging.LogFormat != "" {
			format = cfg.Logging.LogFormat
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// flagsChangedLogFormat reports whether --log-format was changed from its
// default, so an explicit flag still outranks the config file.
func flagsChangedLogFormat() bool {
	return flagLogFormat != "text"
}

func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
