package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f5-tts-go/f5-tts-go/internal/config"
	"github.com/f5-tts-go/f5-tts-go/internal/engine"
)

func TestConfigDefaults(t *testing.T) {
	viper.Reset()
	initConfig()

	cfg, err := loadConfig()
	assert.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8179", cfg.Server.Listen)
	assert.Equal(t, "http", cfg.Engine.Kind)
	assert.Equal(t, "http://127.0.0.1:8180", cfg.Engine.URL)
	assert.Equal(t, 16, cfg.Engine.NFEStep)
	assert.Equal(t, 4, cfg.Cache.MaxEntries)
	assert.Equal(t, "", cfg.Auth.APIKey)
	assert.Equal(t, 0, cfg.Limits.MaxTextLength)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Model.RequireAccelerator)
}

func TestConfigFromEnv(t *testing.T) {
	viper.Reset()
	t.Setenv("F5_LISTEN", "127.0.0.1:9090")
	t.Setenv("F5_ENGINE_URL", "http://worker:8180")
	t.Setenv("F5_API_KEY", "test-key")
	t.Setenv("F5_MAX_TEXT_LENGTH", "5000")
	t.Setenv("F5_LOG_LEVEL", "debug")
	t.Setenv("F5_CACHE_MAX_ENTRIES", "8")

	initConfig()

	cfg, err := loadConfig()
	assert.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Listen)
	assert.Equal(t, "http://worker:8180", cfg.Engine.URL)
	assert.Equal(t, "test-key", cfg.Auth.APIKey)
	assert.Equal(t, 5000, cfg.Limits.MaxTextLength)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 8, cfg.Cache.MaxEntries)
}

func TestConfigFromFile(t *testing.T) {
	viper.Reset()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen: 127.0.0.1:7000
  read_timeout: 5s
engine:
  kind: command
  nfe_step: 32
model:
  require_accelerator: false
stream:
  target_seconds: 18
`), 0o644))

	cfgFile = path
	defer func() { cfgFile = "" }()
	initConfig()

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Listen)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "command", cfg.Engine.Kind)
	assert.Equal(t, 32, cfg.Engine.NFEStep)
	assert.False(t, cfg.Model.RequireAccelerator)
	assert.Equal(t, 18.0, cfg.Stream.TargetSeconds)
}

func TestNewEngine(t *testing.T) {
	cfg := config.Default()

	eng, err := newEngine(cfg)
	require.NoError(t, err)
	assert.IsType(t, &engine.Client{}, eng)

	cfg.Engine.Kind = "command"
	eng, err = newEngine(cfg)
	require.NoError(t, err)
	assert.IsType(t, &engine.Command{}, eng)

	cfg.Engine.Kind = "grpc"
	_, err = newEngine(cfg)
	assert.Error(t, err)
}

func TestSetupLoggerWritesRotatingFile(t *testing.T) {
	cfg := config.Default().Logging
	cfg.File = filepath.Join(t.TempDir(), "server.log")

	logger, closer := setupLogger(cfg)
	require.NotNil(t, closer)

	logger.Info().Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
}
