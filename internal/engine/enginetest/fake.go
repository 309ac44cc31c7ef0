// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"context"
	"sync/atomic"

	"github.com/f5-tts-go/f5-tts-go/internal/audio"
	"github.com/f5-tts-go/f5-tts-go/internal/engine"
)

// SampleRate is the rate of the audio produced by Fake's default functions.
const SampleRate = 24000

// Fake is an engine.Engine whose behaviour is set through function fields.
// Nil fields fall back to deterministic defaults; every call is counted.
type Fake struct {
	LoadFunc            func(ctx context.Context, artifacts engine.Artifacts) (engine.Device, error)
	PreprocessFunc      func(ctx context.Context, path, text string) (*engine.Reference, error)
	GenerateFunc        func(ctx context.Context, ref *engine.Reference, text string, speed float64) (audio.Buffer, error)
	GenerateBatchesFunc func(ctx context.Context, ref *engine.Reference, batches []string, speed float64, yield engine.YieldFunc) error
	ChunkTextFunc       func(text string, maxChars int) []string
	ReleaseFunc         func(ref *engine.Reference) error

	LoadCalls       atomic.Int32
	PreprocessCalls atomic.Int32
	GenerateCalls   atomic.Int32
	BatchCalls      atomic.Int32
	ReleaseCalls    atomic.Int32
}

var (
	_ engine.Engine   = (*Fake)(nil)
	_ engine.Releaser = (*Fake)(nil)
)

// Load implements engine.Engine.
func (f *Fake) Load(ctx context.Context, artifacts engine.Artifacts) (engine.Device, error) {
	f.LoadCalls.Add(1)
	if f.LoadFunc != nil {
		return f.LoadFunc(ctx, artifacts)
	}
	return "cuda", nil
}

// PreprocessRef implements engine.Engine.
func (f *Fake) PreprocessRef(ctx context.Context, path, text string) (*engine.Reference, error) {
	f.PreprocessCalls.Add(1)
	if f.PreprocessFunc != nil {
		return f.PreprocessFunc(ctx, path, text)
	}
	return &engine.Reference{AudioPath: path, Text: engine.NormalizeRefText(text)}, nil
}

// Generate implements engine.Engine.
func (f *Fake) Generate(ctx context.Context, ref *engine.Reference, text string, speed float64) (audio.Buffer, error) {
	f.GenerateCalls.Add(1)
	if f.GenerateFunc != nil {
		return f.GenerateFunc(ctx, ref, text, speed)
	}
	return Tone(len(text) * 100), nil
}

// GenerateBatches implements engine.Engine.
func (f *Fake) GenerateBatches(ctx context.Context, ref *engine.Reference, batches []string, speed float64, yield engine.YieldFunc) error {
	f.BatchCalls.Add(1)
	if f.GenerateBatchesFunc != nil {
		return f.GenerateBatchesFunc(ctx, ref, batches, speed, yield)
	}
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(Tone(len(b) * 100)); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseRef implements engine.Releaser.
func (f *Fake) ReleaseRef(ref *engine.Reference) error {
	f.ReleaseCalls.Add(1)
	if f.ReleaseFunc != nil {
		return f.ReleaseFunc(ref)
	}
	return nil
}

// ChunkText implements engine.Engine.
func (f *Fake) ChunkText(text string, maxChars int) []string {
	if f.ChunkTextFunc != nil {
		return f.ChunkTextFunc(text, maxChars)
	}
	return engine.ChunkText(text, maxChars)
}

// EngineCalls reports the number of calls that would have touched the model.
func (f *Fake) EngineCalls() int {
	return int(f.PreprocessCalls.Load() + f.GenerateCalls.Load() + f.BatchCalls.Load())
}

// Tone returns n float samples at SampleRate.
func Tone(n int) audio.Buffer {
	samples := make([]float32, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 0.25
		} else {
			samples[i] = -0.25
		}
	}
	return audio.Buffer{Float: samples, SampleRate: SampleRate}
}
