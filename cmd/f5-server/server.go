package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/f5-tts-go/f5-tts-go/internal/api"
	"github.com/f5-tts-go/f5-tts-go/internal/cache"
	"github.com/f5-tts-go/f5-tts-go/internal/config"
	"github.com/f5-tts-go/f5-tts-go/internal/engine"
	"github.com/f5-tts-go/f5-tts-go/internal/metrics"
	"github.com/f5-tts-go/f5-tts-go/internal/model"
	"github.com/f5-tts-go/f5-tts-go/internal/service"
	"github.com/f5-tts-go/f5-tts-go/internal/streaming"
	"github.com/f5-tts-go/f5-tts-go/internal/worker"
)

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, logFile := setupLogger(cfg.Logging)
	if logFile != nil {
		defer logFile.Close()
	}

	logger.Info().
		Str("listen", cfg.Server.Listen).
		Str("engine", cfg.Engine.Kind).
		Str("model_dir", cfg.Model.Dir).
		Str("log_level", cfg.Logging.Level).
		Msg("Starting F5-TTS server")

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}

	if client, ok := eng.(*engine.Client); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Health(ctx); err != nil {
			logger.Warn().Err(err).Str("engine_url", cfg.Engine.URL).Msg("Inference worker health check failed")
		} else {
			logger.Info().Str("engine_url", cfg.Engine.URL).Msg("Inference worker connection verified")
		}
		cancel()
	}

	manager := model.NewManager(eng, cfg.Model, logger)
	if err := manager.LoadOnce(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Model load failed")
		return fmt.Errorf("model load failed: %w", err)
	}

	m := metrics.New()

	refs, err := cache.New(eng, cache.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		Metrics:    m,
		Logger:     logger.With().Str("component", "cache").Logger(),
	})
	if err != nil {
		return err
	}

	pool := worker.NewPool(worker.Config{Workers: 1, Metrics: m})

	router := api.NewRouter(api.Deps{
		Config:    cfg,
		Model:     manager,
		Generator: service.New(eng, refs, pool, cfg.Model.OutputDir, logger),
		Streamer: streaming.New(eng, refs, pool, streaming.Config{
			TargetSeconds: cfg.Stream.TargetSeconds,
			MinChunkChars: cfg.Stream.MinChunkChars,
			Buffer:        cfg.Stream.Buffer,
			Metrics:       m,
			Logger:        logger.With().Str("component", "stream").Logger(),
		}),
		CacheSize: refs.Len,
		Metrics:   m,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Listen).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	if err := pool.Shutdown(ctx); err != nil {
		return fmt.Errorf("worker shutdown error: %w", err)
	}
	refs.Purge()

	logger.Info().Msg("Server stopped")
	return nil
}

func newEngine(cfg *config.Config) (engine.Engine, error) {
	switch cfg.Engine.Kind {
	case "", "http":
		return engine.NewClient(&cfg.Engine), nil
	case "command":
		return engine.NewCommand(&cfg.Engine, cfg.Model.Device), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (want http or command)", cfg.Engine.Kind)
	}
}

// loadConfig layers defaults, the config file, F5_* environment variables,
// and changed flags, in increasing precedence.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	strs := map[string]*string{
		"server.listen":         &cfg.Server.Listen,
		"engine.kind":           &cfg.Engine.Kind,
		"engine.url":            &cfg.Engine.URL,
		"engine.command":        &cfg.Engine.Command,
		"engine.model_name":     &cfg.Engine.ModelName,
		"engine.work_dir":       &cfg.Engine.WorkDir,
		"model.dir":             &cfg.Model.Dir,
		"model.vocab_file":      &cfg.Model.VocabFile,
		"model.checkpoint_file": &cfg.Model.CheckpointFile,
		"model.vocoder":         &cfg.Model.Vocoder,
		"model.device":          &cfg.Model.Device,
		"model.output_dir":      &cfg.Model.OutputDir,
		"auth.api_key":          &cfg.Auth.APIKey,
		"logging.level":         &cfg.Logging.Level,
		"logging.format":        &cfg.Logging.Format,
		"logging.file":          &cfg.Logging.File,
	}
	for key, dst := range strs {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}

	ints := map[string]*int{
		"engine.nfe_step":          &cfg.Engine.NFEStep,
		"engine.stream_chunk_size": &cfg.Engine.StreamChunkSize,
		"cache.max_entries":        &cfg.Cache.MaxEntries,
		"stream.min_chunk_chars":   &cfg.Stream.MinChunkChars,
		"stream.buffer":            &cfg.Stream.Buffer,
		"limits.max_text_length":   &cfg.Limits.MaxTextLength,
		"logging.max_size_mb":      &cfg.Logging.MaxSizeMB,
		"logging.max_backups":      &cfg.Logging.MaxBackups,
		"logging.max_age_days":     &cfg.Logging.MaxAgeDays,
	}
	for key, dst := range ints {
		if viper.IsSet(key) {
			*dst = viper.GetInt(key)
		}
	}

	durations := map[string]*time.Duration{
		"server.read_timeout":  &cfg.Server.ReadTimeout,
		"server.write_timeout": &cfg.Server.WriteTimeout,
		"engine.timeout":       &cfg.Engine.Timeout,
	}
	for key, dst := range durations {
		if viper.IsSet(key) {
			*dst = viper.GetDuration(key)
		}
	}

	floats := map[string]*float64{
		"engine.clip_seconds":   &cfg.Engine.ClipSeconds,
		"stream.target_seconds": &cfg.Stream.TargetSeconds,
	}
	for key, dst := range floats {
		if viper.IsSet(key) {
			*dst = viper.GetFloat64(key)
		}
	}

	if viper.IsSet("model.require_accelerator") {
		cfg.Model.RequireAccelerator = viper.GetBool("model.require_accelerator")
	}

	return cfg, nil
}

// setupLogger builds the process logger. When a log file is configured the
// returned closer owns the rotating file.
func setupLogger(cfg config.LoggingConfig) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	if cfg.File == "" {
		return zerolog.New(out).With().Timestamp().Logger(), nil
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	return zerolog.New(zerolog.MultiLevelWriter(out, file)).With().Timestamp().Logger(), file
}
