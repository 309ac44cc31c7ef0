// Package model owns the one-time load of the synthesis model.
package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/f5-tts-go/f5-tts-go/internal/config"
	"github.com/f5-tts-go/f5-tts-go/internal/engine"
)

var (
	// ErrArtifactMissing is returned when a vocabulary or checkpoint file is absent.
	ErrArtifactMissing = errors.New("model artifact missing")

	// ErrNoAccelerator is returned when the model landed on the CPU but an
	// accelerator is required.
	ErrNoAccelerator = errors.New("no accelerator available")
)

// Status is a point-in-time view of the model state.
type Status struct {
	Ready  bool
	Device engine.Device
	Model  string
}

// Manager loads the model exactly once and reports readiness. It never
// reloads or unloads.
type Manager struct {
	engine engine.Engine
	cfg    config.ModelConfig
	logger zerolog.Logger
	stat   func(string) (os.FileInfo, error)

	once    sync.Once
	loadErr error

	ready  atomic.Bool
	device atomic.Value
}

// NewManager creates a manager for the artifacts described by cfg.
func NewManager(eng engine.Engine, cfg config.ModelConfig, logger zerolog.Logger) *Manager {
	return &Manager{
		engine: eng,
		cfg:    cfg,
		logger: logger,
		stat:   os.Stat,
	}
}

// LoadOnce loads the vocoder and model on the first call. Later calls return
// the first call's result without touching the engine.
func (m *Manager) LoadOnce(ctx context.Context) error {
	m.once.Do(func() {
		m.loadErr = m.load(ctx)
	})
	return m.loadErr
}

func (m *Manager) load(ctx context.Context) error {
	artifacts := engine.Artifacts{
		VocabFile:      m.cfg.VocabPath(),
		CheckpointFile: m.cfg.CheckpointPath(),
		Vocoder:        m.cfg.Vocoder,
	}

	for _, path := range []string{artifacts.VocabFile, artifacts.CheckpointFile} {
		if _, err := m.stat(path); err != nil {
			return fmt.Errorf("%w: %s", ErrArtifactMissing, path)
		}
	}

	m.logger.Info().
		Str("vocoder", artifacts.Vocoder).
		Str("checkpoint", artifacts.CheckpointFile).
		Msg("Loading model")

	start := time.Now()
	device, err := m.engine.Load(ctx, artifacts)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	if m.cfg.RequireAccelerator && !device.IsAccelerator() {
		return fmt.Errorf("%w: engine reported device %q", ErrNoAccelerator, device)
	}

	m.device.Store(device)
	m.ready.Store(true)

	m.logger.Info().
		Str("device", string(device)).
		Dur("duration", time.Since(start)).
		Msg("Model loaded")

	return nil
}

// Ready reports whether the model is loaded.
func (m *Manager) Ready() bool {
	return m.ready.Load()
}

// Status never blocks and never calls the engine.
func (m *Manager) Status() Status {
	st := Status{
		Ready: m.ready.Load(),
		Model: m.cfg.CheckpointPath(),
	}
	if d, ok := m.device.Load().(engine.Device); ok {
		st.Device = d
	}
	return st
}
