package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NormalizeRefText brings a reference transcript into the form the model was
// trained on: NFC, trimmed, and terminated by sentence punctuation plus a
// trailing space. An empty transcript stays empty so the engine can
// transcribe the reference itself.
func NormalizeRefText(text string) string {
	text = strings.TrimSpace(norm.NFC.String(text))
	if text == "" {
		return ""
	}

	switch {
	case strings.HasSuffix(text, "。"):
		return text
	case strings.HasSuffix(text, "."):
		return text + " "
	default:
		return text + ". "
	}
}

// ChunkText splits text into batches of at most maxChars bytes, preferring
// sentence and clause boundaries. Sentences longer than maxChars are split
// on whitespace, and single words longer than maxChars on rune boundaries.
// A non-positive maxChars yields the whole text as one batch.
func ChunkText(text string, maxChars int) []string {
	text = strings.TrimSpace(norm.NFC.String(text))
	if text == "" {
		return nil
	}
	if maxChars <= 0 {
		return []string{text}
	}

	var (
		batches []string
		current strings.Builder
	)

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			batches = append(batches, s)
		}
		current.Reset()
	}

	for _, sentence := range splitSentences(text) {
		for _, piece := range splitOversized(sentence, maxChars) {
			if current.Len()+len(piece) > maxChars {
				flush()
			}
			current.WriteString(piece)
			if r, size := utf8.DecodeLastRuneInString(piece); size == 1 && r != utf8.RuneError {
				current.WriteByte(' ')
			}
		}
	}
	flush()

	return batches
}

// splitSentences cuts after ASCII clause punctuation followed by whitespace
// and directly after full-width punctuation.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		next := i + size

		switch {
		case isFullWidthStop(r):
			sentences = append(sentences, text[start:next])
			start = next
		case strings.ContainsRune(";:,.!?", r):
			ws := next
			for ws < len(text) {
				wr, wsize := utf8.DecodeRuneInString(text[ws:])
				if !unicode.IsSpace(wr) {
					break
				}
				ws += wsize
			}
			if ws > next {
				sentences = append(sentences, text[start:next])
				start = ws
				next = ws
			}
		}

		i = next
	}

	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func isFullWidthStop(r rune) bool {
	switch r {
	case '；', '：', '，', '。', '！', '？':
		return true
	}
	return false
}

func splitOversized(sentence string, maxChars int) []string {
	if len(sentence) <= maxChars {
		return []string{sentence}
	}

	var (
		pieces  []string
		current string
	)

	for _, word := range strings.Fields(sentence) {
		for len(word) > maxChars {
			if current != "" {
				pieces = append(pieces, current)
				current = ""
			}
			cut := runeBoundary(word, maxChars)
			pieces = append(pieces, word[:cut])
			word = word[cut:]
		}

		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= maxChars:
			current += " " + word
		default:
			pieces = append(pieces, current)
			current = word
		}
	}

	if current != "" {
		pieces = append(pieces, current)
	}
	return pieces
}

// runeBoundary returns the largest cut <= limit that does not split a rune,
// but always at least one rune.
func runeBoundary(s string, limit int) int {
	cut := 0
	for i, r := range s {
		end := i + utf8.RuneLen(r)
		if end > limit {
			break
		}
		cut = end
	}
	if cut == 0 {
		_, cut = utf8.DecodeRuneInString(s)
	}
	return cut
}
