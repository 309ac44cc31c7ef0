// Package audio holds sample buffers and the in-memory WAV codec.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

const (
	// HeaderSize is the size of the canonical PCM WAV header written by EncodeWAV.
	HeaderSize = 44

	bitsPerSample = 16
	formatPCM     = 1
)

var (
	// ErrInvalidSampleRate indicates a buffer without a usable sample rate.
	ErrInvalidSampleRate = errors.New("audio: sample rate must be positive")
	// ErrInvalidWAV indicates bytes that are not a RIFF/WAVE container.
	ErrInvalidWAV = errors.New("audio: invalid WAV data")
	// ErrUnsupportedWAV indicates a WAV encoding other than 16-bit linear PCM.
	ErrUnsupportedWAV = errors.New("audio: only 16-bit PCM WAV is supported")
)

// Buffer is a mono sample buffer. Exactly one of Float or PCM is populated.
type Buffer struct {
	Float      []float32
	PCM        []int16
	SampleRate int
}

// Len reports the number of samples in the buffer.
func (b Buffer) Len() int {
	if b.Float != nil {
		return len(b.Float)
	}
	return len(b.PCM)
}

// Duration reports the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Len()) / float64(b.SampleRate)
}

// Int16 returns the samples as 16-bit PCM. Float samples are scaled by 32767
// and clamped to the int16 range before truncation.
func (b Buffer) Int16() []int16 {
	if b.Float == nil {
		return b.PCM
	}

	out := make([]int16, len(b.Float))
	for i, s := range b.Float {
		v := float64(s) * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// EncodeWAV renders the buffer as a mono 16-bit PCM RIFF/WAVE container.
func EncodeWAV(b Buffer) ([]byte, error) {
	if b.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}

	samples := b.Int16()
	dataSize := uint32(len(samples) * 2)

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+int(dataSize)))
	buf.WriteString("RIFF")
	writeLE(buf, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	writeLE(buf, uint32(16))
	writeLE(buf, uint16(formatPCM))
	writeLE(buf, uint16(1))
	writeLE(buf, uint32(b.SampleRate))
	writeLE(buf, uint32(b.SampleRate*2))
	writeLE(buf, uint16(2))
	writeLE(buf, uint16(bitsPerSample))
	buf.WriteString("data")
	writeLE(buf, dataSize)
	writeLE(buf, samples)

	return buf.Bytes(), nil
}

// WriteWAVFile encodes the buffer and writes it to path.
func WriteWAVFile(path string, b Buffer) error {
	data, err := EncodeWAV(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadWAVFile reads and decodes a 16-bit PCM WAV file.
func ReadWAVFile(path string) (Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Buffer{}, fmt.Errorf("read wav: %w", err)
	}
	return DecodeWAV(data)
}

// DecodeWAV parses a 16-bit PCM RIFF/WAVE container. Chunks other than
// "fmt " and "data" are skipped; multi-channel audio is averaged to mono.
func DecodeWAV(data []byte) (Buffer, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Buffer{}, ErrInvalidWAV
	}

	var (
		channels   int
		sampleRate int
		haveFormat bool
	)

	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Buffer{}, ErrInvalidWAV
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != formatPCM || bits != bitsPerSample || channels < 1 {
				return Buffer{}, ErrUnsupportedWAV
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return Buffer{}, ErrInvalidWAV
			}
			return Buffer{
				PCM:        downmix(data[body:body+size], channels),
				SampleRate: sampleRate,
			}, nil
		}

		// chunks are word aligned
		offset = body + size + size%2
	}

	return Buffer{}, ErrInvalidWAV
}

func downmix(raw []byte, channels int) []int16 {
	frames := len(raw) / (2 * channels)
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			pos := (i*channels + c) * 2
			sum += int32(int16(binary.LittleEndian.Uint16(raw[pos : pos+2])))
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

func writeLE(buf *bytes.Buffer, v any) {
	// bytes.Buffer writes never fail
	_ = binary.Write(buf, binary.LittleEndian, v)
}
