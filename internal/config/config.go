// Package config implements TOML configuration loading and CLI-flag
// layering for faststart. It is deliberately trimmed against the
// teacher's own internal/config package: where the teacher resolves
// multiple named drives, profiles, filters, transfer tuning, and safety
// thresholds, this engine has exactly one drive backend and one logging
// section, so the multi-drive resolution machinery has no job to do here.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// defaultLogLevel and defaultLogFormat mirror the teacher's "layer 0"
// constants convention (internal/config/defaults.go), trimmed to the two
// sections this engine reads from a config file.
const (
	defaultLogLevel  = "warn"
	defaultLogFormat = "text"

	// defaultClientID is the faststart CLI's own OAuth2 app registration,
	// overridable per-deployment via the config file's [drive] section.
	defaultClientID = "8efac532-bbe7-4bc5-919c-1443ccab860a"
)

var defaultScopes = []string{"offline_access", "Files.ReadWrite.All"}

// DriveConfig holds the OAuth2 client registration and token location for
// the drive backend, following the teacher's Drive-section shape
// (internal/config/drive.go) reduced to the fields this engine needs —
// there is no per-drive alias/selector machinery because faststart
// always operates against exactly one drive.
type DriveConfig struct {
	ClientID  string `toml:"client_id"`
	TenantID  string `toml:"tenant_id"`
	TokenPath string `toml:"token_path"`
	BaseURL   string `toml:"base_url"`
}

// LoggingConfig controls log output, a subset of the teacher's
// LoggingConfig (internal/config/config.go) — faststart has no log file
// rotation or retention policy of its own; logs go to stderr only.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Config is the top-level TOML document, read from ~/.config/faststart/config.toml
// or the path given by --config.
type Config struct {
	Drive   DriveConfig   `toml:"drive"`
	Logging LoggingConfig `toml:"logging"`
}

// DefaultConfig returns a Config populated with every default value, used
// both as the toml.Decode starting point (so unset fields keep their
// defaults) and as the fallback when no config file exists at all.
func DefaultConfig() *Config {
	return &Config{
		Drive: DriveConfig{
			ClientID: defaultClientID,
			BaseURL:  "https://api.drive.example/v1",
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}

// Load reads and parses a TOML config file, falling back to DefaultConfig
// when path does not exist — the teacher's LoadOrDefault shape
// (internal/config/load.go), collapsed into a single function since
// faststart has no drive-section second decode pass to run.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", slog.String("path", path))
		return cfg, nil
	}

	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.Drive.ClientID == "" {
		cfg.Drive.ClientID = defaultClientID
	}

	logger.Debug("config file parsed", slog.String("path", path))

	return cfg, nil
}

// Endpoint returns the Azure AD OAuth2 endpoint for the configured
// TenantID, or for the "common" tenant when TenantID is empty. config does
// not import driveapi; callers in cmd/faststart assemble the
// driveapi.AuthConfig themselves from Endpoint and Scopes.
func (c *Config) Endpoint() oauth2.Endpoint {
	if c.Drive.TenantID != "" {
		return microsoft.AzureADEndpoint(c.Drive.TenantID)
	}

	return microsoft.AzureADEndpoint("common")
}

// Scopes returns the fixed OAuth2 scopes faststart requests — not
// configurable, since the engine only ever needs read/write file access.
func (c *Config) Scopes() []string {
	return defaultScopes
}

// CLIContext bundles the resolved configuration and logger built once in
// the root command's PersistentPreRunE, following the teacher's own
// root.go CLIContext convention — eliminates redundant config-load/logger
// construction in every RunE handler.
type CLIContext struct {
	Cfg    *Config
	Logger *slog.Logger
}

type cliContextKey struct{}

// WithCLIContext returns a context carrying cc, retrievable via
// CLIContextFrom.
func WithCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// CLIContextFrom extracts the CLIContext stored by WithCLIContext, or nil
// if none was set.
func CLIContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}
