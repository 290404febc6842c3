package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigConstants(t *testing.T) {
	assert.Equal(t, "dlvdap", configBaseName)
	assert.Equal(t, "dlvdap.yaml", configFileName)
	assert.Equal(t, ".", configFolderPath)
	assert.Equal(t, "DLVDAP", envPrefix)
	assert.Equal(t, "backend.port", backendPortKey)
	assert.Equal(t, "launch.stop_on_entry", stopOnEntryKey)
	assert.Equal(t, "session.reset_handles_on_resume", resetHandlesKey)
	assert.Equal(t, "dap.queue_size", dapQueueSizeKey)
}

func TestConfigVersionConstants(t *testing.T) {
	assert.Equal(t, "version", configVersionKey)
	assert.Equal(t, 1, currentConfigVersion)
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  slog.Level
	}{
		{"empty", "", slog.LevelWarn},
		{"debug", "debug", slog.LevelDebug},
		{"upper case", "INFO", slog.LevelInfo},
		{"warning alias", "Warning", slog.LevelWarn},
		{"padded", " error ", slog.LevelError},
		{"offset", "info+2", slog.LevelInfo + 2},
		{"unknown", "loud", slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(tt.value, slog.LevelWarn))
		})
	}
}

func TestSessionConfigDefaults(t *testing.T) {
	cfg := sessionConfig(nil)

	assert.Equal(t, 16, cfg.QueueSize)
	assert.True(t, cfg.ForwardOutput)
	assert.False(t, cfg.Debugger.StopOnEntry)
	assert.False(t, cfg.Debugger.ResetHandlesOnResume)
	assert.Equal(t, "dlv", cfg.Debugger.Backend.Path)
	assert.Equal(t, "127.0.0.1", cfg.Debugger.Backend.Host)
	assert.Equal(t, 2345, cfg.Debugger.Backend.Port)
	assert.Equal(t, 1, cfg.Debugger.Backend.APIVersion)
	assert.Equal(t, 10*time.Second, cfg.Debugger.Backend.ConnectTimeout)
}

func TestSessionConfigOverrides(t *testing.T) {
	t.Setenv("DLVDAP_BACKEND_PORT", "4000")
	t.Setenv("DLVDAP_LAUNCH_STOP_ON_ENTRY", "true")
	t.Setenv("DLVDAP_BACKEND_CONNECT_TIMEOUT", "1m")
	viper.Set(dapQueueSizeKey, 4)
	t.Cleanup(func() { viper.Set(dapQueueSizeKey, 16) })

	cfg := sessionConfig(nil)

	assert.Equal(t, 4000, cfg.Debugger.Backend.Port)
	assert.True(t, cfg.Debugger.StopOnEntry)
	assert.Equal(t, time.Minute, cfg.Debugger.Backend.ConnectTimeout)
	assert.Equal(t, 4, cfg.QueueSize)
}

func TestSetupLogging(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "dlvdap.log")
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	logger := setupLogging(logPath, true)
	require.NotNil(t, logger)
	assert.Same(t, slog.Default(), logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger = setupLogging(logPath, false)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))

	logger.Info("ready")
	contents, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "msg=ready")
}

func chdir(t *testing.T, dir string) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(wd)) })
}

func TestReadConfig(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantErr  bool
	}{
		{"missing", "", false},
		{"valid", "dap:\n  queue_size: 16\n", false},
		{"broken", "backend: [unterminated\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			if tt.contents != "" {
				require.NoError(t, os.WriteFile(configFileName, []byte(tt.contents), 0o644))
			}

			err := readConfig()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), configFileName)
		})
	}
}
