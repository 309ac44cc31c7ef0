package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/f5-tts-go/f5-tts-go/internal/audio"
	"github.com/f5-tts-go/f5-tts-go/internal/config"
)

// CommandRunner runs an external command to completion.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, env []string) (stdout, stderr []byte, err error)
}

// ExecCommandRunner uses os/exec.
type ExecCommandRunner struct{}

// Run runs a command with the extra environment appended to the process environment.
func (ExecCommandRunner) Run(ctx context.Context, name string, args []string, env []string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Command runs the F5-TTS inference CLI once per generation. Reference
// preprocessing happens in-process.
type Command struct {
	runner      CommandRunner
	lookPath    func(string) (string, error)
	binary      string
	modelName   string
	workDir     string
	nfeStep     int
	clipSeconds float64
	device      Device
	artifacts   Artifacts
}

var (
	_ Engine   = (*Command)(nil)
	_ Releaser = (*Command)(nil)
)

// NewCommand creates a subprocess engine reporting the given device.
func NewCommand(cfg *config.EngineConfig, device string) *Command {
	return NewCommandWithRunner(cfg, device, ExecCommandRunner{})
}

// NewCommandWithRunner creates a subprocess engine with a custom runner.
func NewCommandWithRunner(cfg *config.EngineConfig, device string, runner CommandRunner) *Command {
	return &Command{
		runner:      runner,
		lookPath:    exec.LookPath,
		binary:      cfg.Command,
		modelName:   cfg.ModelName,
		workDir:     cfg.WorkDir,
		nfeStep:     cfg.NFEStep,
		clipSeconds: cfg.ClipSeconds,
		device:      Device(device),
	}
}

// Load verifies the CLI is installed and remembers the artifacts to pass to it.
func (c *Command) Load(ctx context.Context, artifacts Artifacts) (Device, error) {
	if c.lookPath != nil {
		path, err := c.lookPath(c.binary)
		if err != nil {
			return "", fmt.Errorf("inference command %q not found: %w", c.binary, err)
		}
		c.binary = path
	}

	if err := os.MkdirAll(c.workDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}

	c.artifacts = artifacts
	return c.device, nil
}

// PreprocessRef clips the reference to the configured length, rewrites it as
// mono 16-bit PCM in the work dir and normalizes the transcript. The source
// must already be a 16-bit PCM WAV; other formats fail with
// audio.ErrUnsupportedWAV or audio.ErrInvalidWAV. The written file belongs to
// the returned Reference and is removed by ReleaseRef.
func (c *Command) PreprocessRef(ctx context.Context, path, text string) (*Reference, error) {
	buf, err := audio.ReadWAVFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference audio: %w", err)
	}

	if c.clipSeconds > 0 {
		limit := int(c.clipSeconds * float64(buf.SampleRate))
		if buf.Len() > limit {
			buf.PCM = buf.PCM[:limit]
		}
	}

	out := filepath.Join(c.workDir, "ref_"+uuid.NewString()+".wav")
	if err := audio.WriteWAVFile(out, buf); err != nil {
		os.Remove(out)
		return nil, fmt.Errorf("failed to write preprocessed reference: %w", err)
	}

	return &Reference{AudioPath: out, Text: NormalizeRefText(text)}, nil
}

// ReleaseRef deletes the preprocessed reference file. Files outside the work
// dir are left alone.
func (c *Command) ReleaseRef(ref *Reference) error {
	if ref == nil || filepath.Dir(ref.AudioPath) != filepath.Clean(c.workDir) {
		return nil
	}
	if err := os.Remove(ref.AudioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove preprocessed reference: %w", err)
	}
	return nil
}

// Generate runs the CLI once and reads back the WAV it writes.
func (c *Command) Generate(ctx context.Context, ref *Reference, text string, speed float64) (audio.Buffer, error) {
	if text == "" {
		return audio.Buffer{}, ErrEmptyText
	}

	outputFile := "gen_" + uuid.NewString() + ".wav"
	outputPath := filepath.Join(c.workDir, outputFile)
	defer os.Remove(outputPath)

	_, stderr, err := c.runner.Run(ctx, c.binary, c.buildArgs(ref, text, speed, outputFile), c.env())
	if err != nil {
		if ctx.Err() != nil {
			return audio.Buffer{}, ctx.Err()
		}
		return audio.Buffer{}, &CommandError{Err: err, Stderr: string(bytes.TrimSpace(stderr))}
	}

	buf, err := audio.ReadWAVFile(outputPath)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("failed to read generated audio: %w", err)
	}
	return buf, nil
}

// GenerateBatches runs the CLI once per batch; the CLI has no streaming mode.
func (c *Command) GenerateBatches(ctx context.Context, ref *Reference, batches []string, speed float64, yield YieldFunc) error {
	if len(batches) == 0 {
		return ErrEmptyText
	}

	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}

		buf, err := c.Generate(ctx, ref, batch, speed)
		if err != nil {
			return err
		}
		if err := yield(buf); err != nil {
			return err
		}
	}
	return nil
}

// ChunkText splits text into sentence-bounded batches.
func (c *Command) ChunkText(text string, maxChars int) []string {
	return ChunkText(text, maxChars)
}

func (c *Command) buildArgs(ref *Reference, text string, speed float64, outputFile string) []string {
	return []string{
		"--model", c.modelName,
		"--ref_audio", ref.AudioPath,
		"--ref_text", ref.Text,
		"--gen_text", text,
		"--speed", strconv.FormatFloat(speed, 'f', -1, 64),
		"--nfe_step", strconv.Itoa(c.nfeStep),
		"--vocoder_name", c.artifacts.Vocoder,
		"--vocab_file", c.artifacts.VocabFile,
		"--ckpt_file", c.artifacts.CheckpointFile,
		"--output_dir", c.workDir,
		"--output_file", outputFile,
	}
}

func (c *Command) env() []string {
	env := []string{"PYTHONUTF8=1", "PYTHONIOENCODING=utf-8"}
	if os.Getenv("CUDA_VISIBLE_DEVICES") == "" && c.device.IsAccelerator() {
		env = append(env, "CUDA_VISIBLE_DEVICES=0")
	}
	return env
}
