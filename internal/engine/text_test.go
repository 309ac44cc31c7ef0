package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRefText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"xin chào", "xin chào. "},
		{"hello.", "hello. "},
		{"hello. ", "hello. "},
		{"你好。", "你好。"},
		{"   ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeRefText(tt.in), "input %q", tt.in)
	}
}

func TestChunkText_GroupsSentencesUpToLimit(t *testing.T) {
	text := "One two. Three four. Five six. Seven."

	batches := ChunkText(text, 20)

	assert.Equal(t, []string{"One two. Three four.", "Five six. Seven."}, batches)
}

func TestChunkText_SingleBatchWhenShort(t *testing.T) {
	assert.Equal(t, []string{"short text"}, ChunkText("  short text ", 135))
}

func TestChunkText_EmptyInput(t *testing.T) {
	assert.Nil(t, ChunkText(" \n ", 10))
}

func TestChunkText_NonPositiveLimit(t *testing.T) {
	assert.Equal(t, []string{"a. b. c."}, ChunkText("a. b. c.", 0))
}

func TestChunkText_SplitsOversizedSentences(t *testing.T) {
	text := strings.Repeat("word ", 30) + "end"

	batches := ChunkText(text, 24)
	require.NotEmpty(t, batches)

	for _, b := range batches {
		assert.LessOrEqual(t, len(b), 24, "batch %q", b)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(batches, " ")))
}

func TestChunkText_FullWidthPunctuation(t *testing.T) {
	batches := ChunkText("你好。今天很好！", 15)

	assert.Equal(t, []string{"你好。", "今天很好！"}, batches)
}

func TestChunkText_NeverSplitsRunes(t *testing.T) {
	word := strings.Repeat("\u1eeb", 8)
	batches := ChunkText(word, 7)

	for _, b := range batches {
		assert.True(t, len(b) <= 7)
		assert.True(t, strings.ToValidUTF8(b, "?") == b)
	}
	assert.Equal(t, word, strings.Join(batches, ""))
}
