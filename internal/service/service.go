// Package service runs single-shot generation on the inference worker.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/f5-tts-go/f5-tts-go/internal/audio"
	"github.com/f5-tts-go/f5-tts-go/internal/engine"
	"github.com/f5-tts-go/f5-tts-go/internal/schema"
)

// RefResolver returns the preprocessed reference for a recording.
type RefResolver interface {
	GetOrCompute(ctx context.Context, path, text string) (*engine.Reference, bool, error)
}

// Submitter runs fn with exclusive access to the engine.
type Submitter interface {
	Submit(ctx context.Context, fn func(context.Context) error) error
}

// Result is a finished generation.
type Result struct {
	WAV        []byte
	SampleRate int
	Samples    int
	CacheHit   bool
	Timings    schema.Timings
}

// Service generates whole utterances.
type Service struct {
	engine    engine.Engine
	refs      RefResolver
	pool      Submitter
	outputDir string
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a Service. outputDir receives JSON-mode files.
func New(eng engine.Engine, refs RefResolver, pool Submitter, outputDir string, logger zerolog.Logger) *Service {
	return &Service{
		engine:    eng,
		refs:      refs,
		pool:      pool,
		outputDir: outputDir,
		logger:    logger,
		now:       time.Now,
	}
}

// Generate resolves the reference and synthesizes req.GenText in one worker
// job, then encodes the audio. req must already be validated.
func (s *Service) Generate(ctx context.Context, req *schema.GenerateRequest) (*Result, error) {
	start := time.Now()

	var (
		buf             audio.Buffer
		hit             bool
		preprocess, gen time.Duration
	)

	err := s.pool.Submit(ctx, func(ctx context.Context) error {
		t0 := time.Now()
		ref, cached, err := s.refs.GetOrCompute(ctx, req.RefAudio, req.RefText)
		if err != nil {
			return err
		}
		hit = cached
		preprocess = time.Since(t0)

		t1 := time.Now()
		buf, err = s.engine.Generate(ctx, ref, req.GenText, req.SpeedOrDefault())
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		gen = time.Since(t1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	wav, err := audio.EncodeWAV(buf)
	if err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}

	res := &Result{
		WAV:        wav,
		SampleRate: buf.SampleRate,
		Samples:    buf.Len(),
		CacheHit:   hit,
		Timings: schema.Timings{
			Preprocess: schema.Seconds(preprocess.Seconds()),
			Generate:   schema.Seconds(gen.Seconds()),
			Total:      schema.Seconds(time.Since(start).Seconds()),
		},
	}

	s.logger.Info().
		Bool("cache_hit", hit).
		Str("audio", humanize.Bytes(uint64(len(wav)))).
		Float64("duration_s", buf.Duration()).
		Float64("total_s", res.Timings.Total).
		Msg("Generated audio")

	return res, nil
}

// SaveOutput writes wav to the output directory as generated_<unix ms>.wav
// and returns its path.
func (s *Service) SaveOutput(wav []byte) (string, error) {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	name := fmt.Sprintf("generated_%d.wav", s.now().UnixMilli())
	path := filepath.Join(s.outputDir, name)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}

	s.logger.Debug().Str("path", path).Str("size", humanize.Bytes(uint64(len(wav)))).Msg("Saved output")
	return path, nil
}
