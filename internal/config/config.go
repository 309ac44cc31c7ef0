package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" json:"server"`
	Engine  EngineConfig  `mapstructure:"engine" json:"engine"`
	Model   ModelConfig   `mapstructure:"model" json:"model"`
	Cache   CacheConfig   `mapstructure:"cache" json:"cache"`
	Stream  StreamConfig  `mapstructure:"stream" json:"stream"`
	Auth    AuthConfig    `mapstructure:"auth" json:"auth"`
	Limits  LimitsConfig  `mapstructure:"limits" json:"limits"`
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen      string        `mapstructure:"listen" json:"listen" env:"F5_LISTEN"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" json:"read_timeout" env:"F5_READ_TIMEOUT"`
	// WriteTimeout of zero leaves long streams unbounded.
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" env:"F5_WRITE_TIMEOUT"`
}

// EngineConfig selects and tunes the inference engine.
type EngineConfig struct {
	// Kind is "http" for the resident worker or "command" for the CLI.
	Kind            string        `mapstructure:"kind" json:"kind" env:"F5_ENGINE"`
	URL             string        `mapstructure:"url" json:"url" env:"F5_ENGINE_URL"`
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout" env:"F5_ENGINE_TIMEOUT"`
	Command         string        `mapstructure:"command" json:"command" env:"F5_ENGINE_COMMAND"`
	ModelName       string        `mapstructure:"model_name" json:"model_name" env:"F5_ENGINE_MODEL"`
	WorkDir         string        `mapstructure:"work_dir" json:"work_dir" env:"F5_ENGINE_WORK_DIR"`
	NFEStep         int           `mapstructure:"nfe_step" json:"nfe_step" env:"F5_NFE_STEP"`
	StreamChunkSize int           `mapstructure:"stream_chunk_size" json:"stream_chunk_size" env:"F5_STREAM_CHUNK_SIZE"`
	ClipSeconds     float64       `mapstructure:"clip_seconds" json:"clip_seconds" env:"F5_CLIP_SECONDS"`
}

// ModelConfig holds model artifact locations and device policy.
type ModelConfig struct {
	Dir                string `mapstructure:"dir" json:"dir" env:"F5_MODEL_DIR"`
	VocabFile          string `mapstructure:"vocab_file" json:"vocab_file" env:"F5_VOCAB_FILE"`
	CheckpointFile     string `mapstructure:"checkpoint_file" json:"checkpoint_file" env:"F5_CHECKPOINT_FILE"`
	Vocoder            string `mapstructure:"vocoder" json:"vocoder" env:"F5_VOCODER"`
	Device             string `mapstructure:"device" json:"device" env:"F5_DEVICE"`
	RequireAccelerator bool   `mapstructure:"require_accelerator" json:"require_accelerator" env:"F5_REQUIRE_ACCELERATOR"`
	OutputDir          string `mapstructure:"output_dir" json:"output_dir" env:"F5_OUTPUT_DIR"`
}

// VocabPath resolves the vocabulary file against the model dir.
func (m ModelConfig) VocabPath() string {
	return m.resolve(m.VocabFile)
}

// CheckpointPath resolves the checkpoint file against the model dir.
func (m ModelConfig) CheckpointPath() string {
	return m.resolve(m.CheckpointFile)
}

func (m ModelConfig) resolve(name string) string {
	if filepath.IsAbs(name) || m.Dir == "" {
		return name
	}
	return filepath.Join(m.Dir, name)
}

// CacheConfig holds reference cache settings.
type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries" json:"max_entries" env:"F5_CACHE_MAX_ENTRIES"`
}

// StreamConfig holds streaming batch sizing.
type StreamConfig struct {
	TargetSeconds float64 `mapstructure:"target_seconds" json:"target_seconds" env:"F5_TARGET_SECONDS"`
	MinChunkChars int     `mapstructure:"min_chunk_chars" json:"min_chunk_chars" env:"F5_MIN_CHUNK_CHARS"`
	Buffer        int     `mapstructure:"buffer" json:"buffer" env:"F5_STREAM_BUFFER"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key" json:"api_key" env:"F5_API_KEY"`
}

// LimitsConfig holds request limit settings.
type LimitsConfig struct {
	MaxTextLength int `mapstructure:"max_text_length" json:"max_text_length" env:"F5_MAX_TEXT_LENGTH"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level" json:"level" env:"F5_LOG_LEVEL"`
	Format     string `mapstructure:"format" json:"format" env:"F5_LOG_FORMAT"`
	File       string `mapstructure:"file" json:"file" env:"F5_LOG_FILE"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" json:"max_size_mb" env:"F5_LOG_MAX_SIZE_MB"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups" env:"F5_LOG_MAX_BACKUPS"`
	MaxAgeDays int    `mapstructure:"max_age_days" json:"max_age_days" env:"F5_LOG_MAX_AGE_DAYS"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:       "127.0.0.1:8179",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
		},
		Engine: EngineConfig{
			Kind:            "http",
			URL:             "http://127.0.0.1:8180",
			Timeout:         0,
			Command:         "f5-tts_infer-cli",
			ModelName:       "F5TTS_Base",
			WorkDir:         filepath.Join(os.TempDir(), "f5-tts"),
			NFEStep:         16,
			StreamChunkSize: 8192,
			ClipSeconds:     12,
		},
		Model: ModelConfig{
			Dir:                "F5-TTS-Vietnamese-ViVoice",
			VocabFile:          "vocab.txt",
			CheckpointFile:     "model_last.pt",
			Vocoder:            "vocos",
			Device:             "cuda",
			RequireAccelerator: true,
			OutputDir:          "outputs",
		},
		Cache: CacheConfig{
			MaxEntries: 4,
		},
		Stream: StreamConfig{
			TargetSeconds: 22,
			MinChunkChars: 50,
			Buffer:        1,
		},
		Auth: AuthConfig{
			APIKey: "",
		},
		Limits: LimitsConfig{
			MaxTextLength: 0,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Load returns a Config populated with defaults and environment overrides.
func Load() (*Config, error) {
	return LoadWithDefaults(nil)
}

// LoadWithDefaults loads configuration using defaults and optional overrides map (for tests).
func LoadWithDefaults(overrides map[string]interface{}) (*Config, error) {
	cfg := Default()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if overrides != nil {
		raw, err := json.Marshal(overrides)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
