// Package engine defines the inference engine the server drives and its
// out-of-process implementations.
package engine

import (
	"context"

	"github.com/f5-tts-go/f5-tts-go/internal/audio"
)

// Reference is a preprocessed reference voice: the normalized waveform on
// disk and its normalized transcript. Values are shared between requests and
// must be treated as read-only.
type Reference struct {
	AudioPath string `json:"audio_path" msgpack:"audio_path"`
	Text      string `json:"text" msgpack:"text"`
}

// Artifacts names the files and components needed to load the model.
type Artifacts struct {
	VocabFile      string `json:"vocab_file" msgpack:"vocab_file"`
	CheckpointFile string `json:"ckpt_file" msgpack:"ckpt_file"`
	Vocoder        string `json:"vocoder" msgpack:"vocoder"`
}

// Device describes the accelerator the model was loaded on, e.g. "cuda" or "cpu".
type Device string

// IsAccelerator reports whether the device is something other than the CPU.
func (d Device) IsAccelerator() bool {
	return d != "" && d != "cpu"
}

// YieldFunc receives one generated buffer per text batch, in batch order.
// Returning an error stops generation.
type YieldFunc func(audio.Buffer) error

// Preprocessor turns a reference recording and transcript into a Reference.
type Preprocessor interface {
	PreprocessRef(ctx context.Context, path, text string) (*Reference, error)
}

// Releaser is implemented by preprocessors whose references own resources,
// such as files in a work dir. ReleaseRef is called once a reference is no
// longer cached; it must not be called while the reference is in use.
type Releaser interface {
	ReleaseRef(ref *Reference) error
}

// Engine is the non-reentrant speech synthesis resource. Callers serialize
// access to everything except ChunkText.
type Engine interface {
	Preprocessor

	// Load loads the vocoder and then the model weights.
	Load(ctx context.Context, artifacts Artifacts) (Device, error)

	// Generate synthesizes text in the reference voice.
	Generate(ctx context.Context, ref *Reference, text string, speed float64) (audio.Buffer, error)

	// GenerateBatches synthesizes each batch in order and hands each result to yield.
	GenerateBatches(ctx context.Context, ref *Reference, batches []string, speed float64, yield YieldFunc) error

	// ChunkText splits text into ordered batches of at most maxChars bytes.
	ChunkText(text string, maxChars int) []string
}
