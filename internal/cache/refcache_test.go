package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f5-tts-go/f5-tts-go/internal/audio"
	"github.com/f5-tts-go/f5-tts-go/internal/config"
	"github.com/f5-tts-go/f5-tts-go/internal/engine"
	"github.com/f5-tts-go/f5-tts-go/internal/engine/enginetest"
	"github.com/f5-tts-go/f5-tts-go/internal/metrics"
)

func newTestCache(t *testing.T, fake *enginetest.Fake, max int) *RefCache {
	t.Helper()
	c, err := New(fake, Config{MaxEntries: max, Metrics: metrics.New(), Logger: zerolog.Nop()})
	require.NoError(t, err)
	return c
}

func writeRef(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
	return path
}

func TestGetOrCompute_HitAvoidsPreprocessing(t *testing.T) {
	fake := &enginetest.Fake{}
	c := newTestCache(t, fake, 4)
	path := writeRef(t, t.TempDir(), "sample.wav")

	first, hit, err := c.GetOrCompute(context.Background(), path, "hello")
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.GetOrCompute(context.Background(), path, "hello")
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), fake.PreprocessCalls.Load())
}

func TestGetOrCompute_ModTimeChangeMisses(t *testing.T) {
	fake := &enginetest.Fake{}
	c := newTestCache(t, fake, 4)
	path := writeRef(t, t.TempDir(), "sample.wav")

	_, _, err := c.GetOrCompute(context.Background(), path, "hello")
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	_, hit, err := c.GetOrCompute(context.Background(), path, "hello")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), fake.PreprocessCalls.Load())
}

func TestGetOrCompute_TranscriptChangeMisses(t *testing.T) {
	fake := &enginetest.Fake{}
	c := newTestCache(t, fake, 4)
	path := writeRef(t, t.TempDir(), "sample.wav")

	_, _, err := c.GetOrCompute(context.Background(), path, "hello")
	require.NoError(t, err)
	_, hit, err := c.GetOrCompute(context.Background(), path, "hello there")
	require.NoError(t, err)

	assert.False(t, hit)
	assert.Equal(t, int32(2), fake.PreprocessCalls.Load())
}

func TestGetOrCompute_MissingFileUsesZeroModTime(t *testing.T) {
	fake := &enginetest.Fake{}
	c := newTestCache(t, fake, 4)
	path := filepath.Join(t.TempDir(), "missing.wav")

	_, _, err := c.GetOrCompute(context.Background(), path, "hello")
	require.NoError(t, err)
	_, hit, err := c.GetOrCompute(context.Background(), path, "hello")
	require.NoError(t, err)

	assert.True(t, hit)
	assert.True(t, c.contains(path, "hello"))
	assert.Equal(t, Key(path, 0, "hello"), Key(path, 0, "hello"))
}

func TestGetOrCompute_EvictsLeastRecentlyUsed(t *testing.T) {
	fake := &enginetest.Fake{}
	m := metrics.New()
	c, err := New(fake, Config{MaxEntries: 4, Metrics: m, Logger: zerolog.Nop()})
	require.NoError(t, err)

	dir := t.TempDir()
	paths := make([]string, 5)
	for i := range paths {
		paths[i] = writeRef(t, dir, fmt.Sprintf("ref%d.wav", i))
	}

	for _, p := range paths[:4] {
		_, _, err := c.GetOrCompute(context.Background(), p, "text")
		require.NoError(t, err)
	}

	// touch ref0 so ref1 becomes the least recently used
	_, hit, err := c.GetOrCompute(context.Background(), paths[0], "text")
	require.NoError(t, err)
	require.True(t, hit)

	_, _, err = c.GetOrCompute(context.Background(), paths[4], "text")
	require.NoError(t, err)

	assert.Equal(t, 4, c.Len())
	assert.False(t, c.contains(paths[1], "text"))
	for _, p := range []string{paths[0], paths[2], paths[3], paths[4]} {
		assert.True(t, c.contains(p, "text"), p)
	}
	assert.Equal(t, int64(1), m.CacheEvictions())
	assert.Equal(t, int32(1), fake.ReleaseCalls.Load())
}

func TestGetOrCompute_ErrorsAreNotCached(t *testing.T) {
	calls := 0
	fake := &enginetest.Fake{
		PreprocessFunc: func(ctx context.Context, path, text string) (*engine.Reference, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("decode failed")
			}
			return &engine.Reference{AudioPath: path, Text: text}, nil
		},
	}
	c := newTestCache(t, fake, 4)
	path := writeRef(t, t.TempDir(), "sample.wav")

	_, _, err := c.GetOrCompute(context.Background(), path, "hello")
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())

	_, hit, err := c.GetOrCompute(context.Background(), path, "hello")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, c.Len())
}

func TestKeyDistinguishesInputs(t *testing.T) {
	base := Key("a.wav", 1, "t")

	assert.Len(t, base, 32)
	assert.NotEqual(t, base, Key("a.wav", 2, "t"))
	assert.NotEqual(t, base, Key("a.wav", 1, "u"))
	assert.NotEqual(t, base, Key("b.wav", 1, "t"))
}

func TestGetOrCompute_EvictionRemovesPreprocessedFiles(t *testing.T) {
	workDir := t.TempDir()
	cmd := engine.NewCommandWithRunner(&config.EngineConfig{WorkDir: workDir, ClipSeconds: 12}, "cpu", nil)
	c, err := New(cmd, Config{MaxEntries: 4, Logger: zerolog.Nop()})
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "sample.wav")
	require.NoError(t, audio.WriteWAVFile(src, audio.Buffer{PCM: make([]int16, 2400), SampleRate: 24000}))

	for i := 0; i < 20; i++ {
		_, hit, err := c.GetOrCompute(context.Background(), src, fmt.Sprintf("transcript %d", i))
		require.NoError(t, err)
		require.False(t, hit)
	}

	files, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())
	assert.Len(t, files, c.Len())

	c.Purge()
	files, err = os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestGetOrCompute_ReleaseFailureKeepsServing(t *testing.T) {
	fake := &enginetest.Fake{
		ReleaseFunc: func(*engine.Reference) error { return errors.New("busy") },
	}
	c := newTestCache(t, fake, 1)
	dir := t.TempDir()

	_, _, err := c.GetOrCompute(context.Background(), writeRef(t, dir, "a.wav"), "text")
	require.NoError(t, err)
	_, _, err = c.GetOrCompute(context.Background(), writeRef(t, dir, "b.wav"), "text")
	require.NoError(t, err)

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int32(1), fake.ReleaseCalls.Load())
}
