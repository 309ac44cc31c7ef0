// Package streaming turns one generation request into an ordered sequence of
// independently playable WAV chunks.
package streaming

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/f5-tts-go/f5-tts-go/internal/audio"
	"github.com/f5-tts-go/f5-tts-go/internal/engine"
	"github.com/f5-tts-go/f5-tts-go/internal/metrics"
	"github.com/f5-tts-go/f5-tts-go/internal/schema"
)

const (
	// DefaultTargetSeconds is the reference-plus-batch audio window the model handles well.
	DefaultTargetSeconds = 22.0
	// DefaultMinChunkChars is the smallest batch size MaxChars returns.
	DefaultMinChunkChars = 50
)

// RefResolver returns the preprocessed reference for a recording.
type RefResolver interface {
	GetOrCompute(ctx context.Context, path, text string) (*engine.Reference, bool, error)
}

// Submitter runs fn with exclusive access to the engine.
type Submitter interface {
	Submit(ctx context.Context, fn func(context.Context) error) error
}

// Request is a validated streaming request.
type Request struct {
	RefAudio string
	RefText  string
	GenText  string
	Speed    float64
}

// Chunk is one WAV-encoded batch. Index counts from 0 within a session.
type Chunk struct {
	Index      int
	Audio      []byte
	SampleRate int
	// Elapsed is seconds since the session started.
	Elapsed float64
}

// Event is either a chunk or the terminal error of a session.
type Event struct {
	Chunk *Chunk
	Err   error
}

// Config controls batch sizing and channel depth.
type Config struct {
	TargetSeconds float64
	MinChunkChars int
	Buffer        int
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// Orchestrator runs stream sessions.
type Orchestrator struct {
	engine engine.Engine
	refs   RefResolver
	pool   Submitter
	cfg    Config
}

// New creates an Orchestrator.
func New(eng engine.Engine, refs RefResolver, pool Submitter, cfg Config) *Orchestrator {
	if cfg.TargetSeconds <= 0 {
		cfg.TargetSeconds = DefaultTargetSeconds
	}
	if cfg.MinChunkChars <= 0 {
		cfg.MinChunkChars = DefaultMinChunkChars
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}

	return &Orchestrator{
		engine: eng,
		refs:   refs,
		pool:   pool,
		cfg:    cfg,
	}
}

// MaxChars sizes text batches so that reference audio plus generated audio
// fits in window seconds, assuming the generated speech runs at the
// reference's bytes-per-second rate. Results below min are raised to min.
func MaxChars(refTextBytes int, refSeconds, window float64, min int) int {
	if refSeconds <= 0 {
		return min
	}
	n := int(math.Floor(float64(refTextBytes) / refSeconds * (window - refSeconds)))
	if n < min {
		return min
	}
	return n
}

// Stream starts a session and returns its events. Chunks arrive with
// ascending indexes; a failure is delivered as a single final Event with Err
// set. The channel is closed when the session ends. Cancelling ctx stops the
// session after the in-flight engine call and closes the channel without an
// error event.
func (o *Orchestrator) Stream(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, o.cfg.Buffer)

	go func() {
		defer close(out)

		o.cfg.Metrics.IncActiveStreams()
		defer o.cfg.Metrics.DecActiveStreams()

		err := o.pool.Submit(ctx, func(ctx context.Context) error {
			return o.run(ctx, req, out)
		})
		if err == nil || ctx.Err() != nil {
			return
		}

		o.cfg.Logger.Error().Err(err).Msg("Stream failed")
		select {
		case out <- Event{Err: err}:
		case <-ctx.Done():
		}
	}()

	return out
}

func (o *Orchestrator) run(ctx context.Context, req Request, out chan<- Event) error {
	start := time.Now()

	ref, hit, err := o.refs.GetOrCompute(ctx, req.RefAudio, req.RefText)
	if err != nil {
		return err
	}

	refAudio, err := audio.ReadWAVFile(ref.AudioPath)
	if err != nil {
		return fmt.Errorf("read reference audio: %w", err)
	}

	maxChars := MaxChars(len(ref.Text), refAudio.Duration(), o.cfg.TargetSeconds, o.cfg.MinChunkChars)
	batches := o.engine.ChunkText(req.GenText, maxChars)

	o.cfg.Logger.Debug().
		Bool("cache_hit", hit).
		Float64("ref_seconds", refAudio.Duration()).
		Int("max_chars", maxChars).
		Int("batches", len(batches)).
		Msg("Stream session started")

	index := 0
	return o.engine.GenerateBatches(ctx, ref, batches, req.Speed, func(buf audio.Buffer) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		wav, err := audio.EncodeWAV(buf)
		if err != nil {
			return fmt.Errorf("encode chunk %d: %w", index, err)
		}

		chunk := &Chunk{
			Index:      index,
			Audio:      wav,
			SampleRate: buf.SampleRate,
			Elapsed:    schema.Seconds(time.Since(start).Seconds()),
		}

		select {
		case out <- Event{Chunk: chunk}:
		case <-ctx.Done():
			return ctx.Err()
		}

		o.cfg.Metrics.IncChunksStreamed()
		index++
		return nil
	})
}
