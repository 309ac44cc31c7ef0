package schema

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	defaultSpeed = 1.0

	// FormatJSON persists the audio and answers with its path.
	FormatJSON = "json"
	// FormatWAV answers with the audio bytes.
	FormatWAV = "wav"

	genTextEchoRunes = 50
)

// ErrMissingFields is returned when ref_audio or gen_text is absent.
var ErrMissingFields = errors.New("Missing ref_audio or gen_text")

// GenerateRequest is the body of /generate and /generate-stream.
type GenerateRequest struct {
	RefAudio       string   `json:"ref_audio" msgpack:"ref_audio"`
	RefText        string   `json:"ref_text" msgpack:"ref_text"`
	GenText        string   `json:"gen_text" msgpack:"gen_text"`
	Speed          *float64 `json:"speed,omitempty" msgpack:"speed,omitempty"`
	ResponseFormat string   `json:"response_format,omitempty" msgpack:"response_format,omitempty"`
}

// Validate applies default values and rejects requests that must not reach
// the engine. maxTextLength of zero disables the length check.
func (r *GenerateRequest) Validate(maxTextLength int) error {
	if r.RefAudio == "" || r.GenText == "" {
		return ErrMissingFields
	}

	if maxTextLength > 0 && utf8.RuneCountInString(r.GenText) > maxTextLength {
		return fmt.Errorf("gen_text is too long, max length is %d", maxTextLength)
	}

	if r.Speed == nil {
		speed := defaultSpeed
		r.Speed = &speed
	}
	if *r.Speed <= 0 {
		return fmt.Errorf("speed must be greater than 0")
	}

	if r.ResponseFormat == "" {
		r.ResponseFormat = FormatJSON
	}
	if r.ResponseFormat != FormatJSON && r.ResponseFormat != FormatWAV {
		return fmt.Errorf("response_format must be %q or %q", FormatJSON, FormatWAV)
	}

	return nil
}

// SpeedOrDefault returns the requested speed, or 1.0 when unset.
func (r *GenerateRequest) SpeedOrDefault() float64 {
	if r.Speed == nil {
		return defaultSpeed
	}
	return *r.Speed
}

// GenerateResponse is the JSON-mode success body.
type GenerateResponse struct {
	Success bool    `json:"success" msgpack:"success"`
	Output  string  `json:"output" msgpack:"output"`
	GenText string  `json:"gen_text" msgpack:"gen_text"`
	Timings Timings `json:"timings" msgpack:"timings"`
}

// EchoText truncates text to the prefix echoed back in responses.
func EchoText(text string) string {
	if utf8.RuneCountInString(text) <= genTextEchoRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:genTextEchoRunes])
}
