// Package cache keeps preprocessed reference voices keyed by file state.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/f5-tts-go/f5-tts-go/internal/engine"
	"github.com/f5-tts-go/f5-tts-go/internal/metrics"
)

// DefaultMaxEntries is the number of references kept resident.
const DefaultMaxEntries = 4

// Key derives the cache key for a reference file at a given modification
// time (unix nanoseconds, 0 when the file could not be stat'ed) and transcript.
func Key(path string, mtime int64, text string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%d|%s", path, mtime, text)))
	return hex.EncodeToString(sum[:])
}

// Config controls a RefCache.
type Config struct {
	MaxEntries int
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// RefCache is a bounded LRU of preprocessed references. Entries are shared
// between callers and never mutated. Misses call the preprocessor
// synchronously and must run under the inference worker.
type RefCache struct {
	entries *lru.Cache[string, *engine.Reference]
	pre     engine.Preprocessor
	release func(*engine.Reference) error
	stat    func(string) (os.FileInfo, error)
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a cache in front of pre.
func New(pre engine.Preprocessor, cfg Config) (*RefCache, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}

	c := &RefCache{
		pre:     pre,
		stat:    os.Stat,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}

	if r, ok := pre.(engine.Releaser); ok {
		c.release = r.ReleaseRef
	}

	entries, err := lru.NewWithEvict(cfg.MaxEntries, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create reference cache: %w", err)
	}
	c.entries = entries

	return c, nil
}

// GetOrCompute returns the cached reference for path and transcript, calling
// the preprocessor on a miss. The bool reports a cache hit.
func (c *RefCache) GetOrCompute(ctx context.Context, path, text string) (*engine.Reference, bool, error) {
	key := Key(path, c.modTime(path), text)

	if ref, ok := c.entries.Get(key); ok {
		c.metrics.IncCacheHit()
		c.logger.Debug().Str("ref_audio", path).Msg("Reference cache hit")
		return ref, true, nil
	}

	c.metrics.IncCacheMiss()
	c.logger.Debug().Str("ref_audio", path).Msg("Reference cache miss, preprocessing")

	ref, err := c.pre.PreprocessRef(ctx, path, text)
	if err != nil {
		return nil, false, fmt.Errorf("preprocess reference: %w", err)
	}

	c.entries.Add(key, ref)
	return ref, false, nil
}

// Purge drops every entry, releasing each reference. Call it after the
// inference worker has stopped.
func (c *RefCache) Purge() {
	c.entries.Purge()
}

// Len reports the number of resident entries.
func (c *RefCache) Len() int {
	return c.entries.Len()
}

// contains reports whether the reference is resident without touching its recency.
func (c *RefCache) contains(path, text string) bool {
	return c.entries.Contains(Key(path, c.modTime(path), text))
}

func (c *RefCache) modTime(path string) int64 {
	info, err := c.stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

func (c *RefCache) onEvict(key string, ref *engine.Reference) {
	c.metrics.IncCacheEviction()
	c.logger.Debug().Str("key", key).Str("audio_path", ref.AudioPath).Msg("Reference evicted")

	if c.release == nil {
		return
	}
	if err := c.release(ref); err != nil {
		c.logger.Warn().Err(err).Str("audio_path", ref.AudioPath).Msg("Failed to release reference")
	}
}
