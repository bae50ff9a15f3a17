package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModeFlagsAreMutuallyExclusive(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--data-path", t.TempDir(), "--remux-only", "--transcode-only", "/some/root"})

	err := cmd.Execute()
	require.Error(t, err)
}

func TestLogFormatFlagAffectsOutput(t *testing.T) {
	flagLogFormat = "json"
	defer func() { flagLogFormat = "text" }()

	logger := buildLogger(nil)
	require.NotNil(t, logger)

	_, isJSON := logger.Handler().(*slog.JSONHandler)
	require.True(t, isJSON)
}

func TestResolveConfigPathDefaultsUnderHome(t *testing.T) {
	flagConfigPath = ""

	path := resolveConfigPath()
	require.NotEmpty(t, path)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "faststart", "config.toml"), path)
}
