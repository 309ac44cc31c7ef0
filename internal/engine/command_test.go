package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f5-tts-go/f5-tts-go/internal/audio"
	"github.com/f5-tts-go/f5-tts-go/internal/config"
)

type fakeRunner struct {
	calls [][]string
	run   func(args []string) ([]byte, error)
}

func (f *fakeRunner) Run(_ context.Context, _ string, args []string, _ []string) ([]byte, []byte, error) {
	f.calls = append(f.calls, args)
	if f.run != nil {
		stderr, err := f.run(args)
		return nil, stderr, err
	}
	return nil, nil, nil
}

func argValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// writesOutput emulates the CLI by writing n samples to the requested output file.
func writesOutput(n int) func(args []string) ([]byte, error) {
	return func(args []string) ([]byte, error) {
		path := filepath.Join(argValue(args, "--output_dir"), argValue(args, "--output_file"))
		return nil, audio.WriteWAVFile(path, audio.Buffer{PCM: make([]int16, n), SampleRate: 24000})
	}
}

func newTestCommand(t *testing.T, runner CommandRunner) *Command {
	t.Helper()
	cmd := NewCommandWithRunner(&config.EngineConfig{
		Command:     "f5-tts_infer-cli",
		ModelName:   "F5TTS_Base",
		WorkDir:     t.TempDir(),
		NFEStep:     16,
		ClipSeconds: 1,
	}, "cuda", runner)
	cmd.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }

	_, err := cmd.Load(context.Background(), Artifacts{VocabFile: "vocab.txt", CheckpointFile: "model_last.pt", Vocoder: "vocos"})
	require.NoError(t, err)
	return cmd
}

func TestCommandLoad_MissingBinary(t *testing.T) {
	cmd := NewCommandWithRunner(&config.EngineConfig{Command: "missing", WorkDir: t.TempDir()}, "cuda", &fakeRunner{})
	cmd.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	_, err := cmd.Load(context.Background(), Artifacts{})
	require.Error(t, err)
}

func TestCommandPreprocessRef_ClipsAndNormalizes(t *testing.T) {
	cmd := newTestCommand(t, &fakeRunner{})

	src := filepath.Join(t.TempDir(), "sample.wav")
	require.NoError(t, audio.WriteWAVFile(src, audio.Buffer{PCM: make([]int16, 48000), SampleRate: 24000}))

	ref, err := cmd.PreprocessRef(context.Background(), src, "xin chào")
	require.NoError(t, err)

	assert.Equal(t, "xin chào. ", ref.Text)
	buf, err := audio.ReadWAVFile(ref.AudioPath)
	require.NoError(t, err)
	assert.Equal(t, 24000, buf.Len())
}

func TestCommandGenerate_BuildsArgsAndReadsOutput(t *testing.T) {
	runner := &fakeRunner{run: writesOutput(1200)}
	cmd := newTestCommand(t, runner)

	buf, err := cmd.Generate(context.Background(), &Reference{AudioPath: "/refs/a.wav", Text: "hi. "}, "target", 0.9)
	require.NoError(t, err)
	assert.Equal(t, 1200, buf.Len())

	require.Len(t, runner.calls, 1)
	args := runner.calls[0]
	assert.Equal(t, "F5TTS_Base", argValue(args, "--model"))
	assert.Equal(t, "/refs/a.wav", argValue(args, "--ref_audio"))
	assert.Equal(t, "target", argValue(args, "--gen_text"))
	assert.Equal(t, "0.9", argValue(args, "--speed"))
	assert.Equal(t, "16", argValue(args, "--nfe_step"))
	assert.Equal(t, "model_last.pt", argValue(args, "--ckpt_file"))

	_, statErr := os.Stat(filepath.Join(argValue(args, "--output_dir"), argValue(args, "--output_file")))
	assert.True(t, os.IsNotExist(statErr), "generated file should be removed")
}

func TestCommandGenerate_Failure(t *testing.T) {
	runner := &fakeRunner{run: func([]string) ([]byte, error) {
		return []byte("Traceback: boom\n"), errors.New("exit status 1")
	}}
	cmd := newTestCommand(t, runner)

	_, err := cmd.Generate(context.Background(), &Reference{}, "target", 1)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "Traceback: boom", cmdErr.Stderr)
}

func TestCommandGenerateBatches_RunsOncePerBatch(t *testing.T) {
	runner := &fakeRunner{run: writesOutput(10)}
	cmd := newTestCommand(t, runner)

	var yielded int
	err := cmd.GenerateBatches(context.Background(), &Reference{}, []string{"a", "b", "c"}, 1, func(audio.Buffer) error {
		yielded++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, yielded)
	assert.Len(t, runner.calls, 3)
}

func TestCommandReleaseRef_RemovesOnlyWorkDirFiles(t *testing.T) {
	cmd := newTestCommand(t, &fakeRunner{})

	src := filepath.Join(t.TempDir(), "sample.wav")
	require.NoError(t, audio.WriteWAVFile(src, audio.Buffer{PCM: make([]int16, 2400), SampleRate: 24000}))

	ref, err := cmd.PreprocessRef(context.Background(), src, "xin chào")
	require.NoError(t, err)
	require.FileExists(t, ref.AudioPath)

	require.NoError(t, cmd.ReleaseRef(ref))
	assert.NoFileExists(t, ref.AudioPath)
	require.NoError(t, cmd.ReleaseRef(ref))

	require.NoError(t, cmd.ReleaseRef(&Reference{AudioPath: src}))
	assert.FileExists(t, src)
}

func TestCommandPreprocessRef_RejectsNonPCM(t *testing.T) {
	cmd := newTestCommand(t, &fakeRunner{})

	src := filepath.Join(t.TempDir(), "sample.mp3")
	require.NoError(t, os.WriteFile(src, []byte("ID3\x04\x00"), 0o644))

	_, err := cmd.PreprocessRef(context.Background(), src, "xin chào")
	require.ErrorIs(t, err, audio.ErrInvalidWAV)

	files, err := os.ReadDir(cmd.workDir)
	require.NoError(t, err)
	assert.Empty(t, files)
}
