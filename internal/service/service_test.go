package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f5-tts-go/f5-tts-go/internal/audio"
	"github.com/f5-tts-go/f5-tts-go/internal/cache"
	"github.com/f5-tts-go/f5-tts-go/internal/engine"
	"github.com/f5-tts-go/f5-tts-go/internal/engine/enginetest"
	"github.com/f5-tts-go/f5-tts-go/internal/schema"
	"github.com/f5-tts-go/f5-tts-go/internal/worker"
)

func newService(t *testing.T, fake *enginetest.Fake) (*Service, *cache.RefCache) {
	t.Helper()

	refs, err := cache.New(fake, cache.Config{MaxEntries: 4, Logger: zerolog.Nop()})
	require.NoError(t, err)

	pool := worker.NewPool(worker.Config{Workers: 1})
	t.Cleanup(func() {
		_ = pool.Shutdown(context.Background())
	})

	return New(fake, refs, pool, t.TempDir(), zerolog.Nop()), refs
}

func validRequest(t *testing.T) *schema.GenerateRequest {
	t.Helper()
	req := &schema.GenerateRequest{RefAudio: "ref.wav", RefText: "xin chào", GenText: "hello world"}
	require.NoError(t, req.Validate(0))
	return req
}

func TestGenerate_ReturnsWAV(t *testing.T) {
	fake := &enginetest.Fake{
		GenerateFunc: func(ctx context.Context, ref *engine.Reference, text string, speed float64) (audio.Buffer, error) {
			return enginetest.Tone(24000), nil
		},
	}
	svc, _ := newService(t, fake)

	res, err := svc.Generate(context.Background(), validRequest(t))
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(res.WAV, []byte("RIFF")))
	assert.Len(t, res.WAV, audio.HeaderSize+48000)
	assert.Equal(t, 24000, res.SampleRate)
	assert.False(t, res.CacheHit)
	assert.GreaterOrEqual(t, res.Timings.Total, res.Timings.Generate)
}

func TestGenerate_SecondRequestHitsCache(t *testing.T) {
	fake := &enginetest.Fake{}
	svc, refs := newService(t, fake)

	_, err := svc.Generate(context.Background(), validRequest(t))
	require.NoError(t, err)
	res, err := svc.Generate(context.Background(), validRequest(t))
	require.NoError(t, err)

	assert.True(t, res.CacheHit)
	assert.Equal(t, int32(1), fake.PreprocessCalls.Load())
	assert.Equal(t, int32(2), fake.GenerateCalls.Load())
	assert.Equal(t, 1, refs.Len())
}

func TestGenerate_PassesSpeedAndReference(t *testing.T) {
	var gotRef *engine.Reference
	var gotSpeed float64
	fake := &enginetest.Fake{
		GenerateFunc: func(ctx context.Context, ref *engine.Reference, text string, speed float64) (audio.Buffer, error) {
			gotRef, gotSpeed = ref, speed
			return enginetest.Tone(10), nil
		},
	}
	svc, _ := newService(t, fake)

	speed := 0.7
	req := &schema.GenerateRequest{RefAudio: "ref.wav", RefText: "xin chào", GenText: "hi", Speed: &speed}
	require.NoError(t, req.Validate(0))

	_, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 0.7, gotSpeed)
	require.NotNil(t, gotRef)
	assert.Equal(t, "ref.wav", gotRef.AudioPath)
	assert.Equal(t, "xin chào. ", gotRef.Text)
}

func TestGenerate_PreprocessFailureIsNotCached(t *testing.T) {
	fake := &enginetest.Fake{
		PreprocessFunc: func(ctx context.Context, path, text string) (*engine.Reference, error) {
			return nil, errors.New("unreadable audio")
		},
	}
	svc, refs := newService(t, fake)

	_, err := svc.Generate(context.Background(), validRequest(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable audio")
	assert.Equal(t, 0, refs.Len())
	assert.Equal(t, int32(0), fake.GenerateCalls.Load())
}

func TestGenerate_EngineFailure(t *testing.T) {
	boom := errors.New("cuda error")
	fake := &enginetest.Fake{
		GenerateFunc: func(ctx context.Context, ref *engine.Reference, text string, speed float64) (audio.Buffer, error) {
			return audio.Buffer{}, boom
		},
	}
	svc, _ := newService(t, fake)

	_, err := svc.Generate(context.Background(), validRequest(t))
	assert.ErrorIs(t, err, boom)
}

func TestSaveOutput(t *testing.T) {
	svc, _ := newService(t, &enginetest.Fake{})
	svc.now = func() time.Time { return time.UnixMilli(1700000000123) }

	path, err := svc.SaveOutput([]byte("RIFFdata"))
	require.NoError(t, err)

	assert.Equal(t, "generated_1700000000123.wav", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFFdata"), data)
}
