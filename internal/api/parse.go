package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/f5-tts-go/f5-tts-go/internal/schema"
)

const maxRequestBodyBytes int64 = 1 << 20

// HTTPError represents an error with an associated HTTP status code.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// ParseRequestBody decodes the request body into the provided value based on
// Content-Type. A missing Content-Type is treated as JSON.
func ParseRequestBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	switch strings.ToLower(mediaType) {
	case "", "application/json", "text/plain":
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			return bodyError(err)
		}
	case "application/msgpack", "application/x-msgpack":
		if err := msgpack.NewDecoder(r.Body).Decode(v); err != nil {
			return bodyError(err)
		}
	default:
		return &HTTPError{Status: http.StatusUnsupportedMediaType, Message: "Unsupported content type"}
	}

	return nil
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return &HTTPError{Status: http.StatusRequestEntityTooLarge, Message: "Request body too large"}
	}
	return &HTTPError{Status: http.StatusBadRequest, Message: "Invalid request body"}
}

// ParseGenerateRequest parses and validates a GenerateRequest from the HTTP request.
func ParseGenerateRequest(w http.ResponseWriter, r *http.Request, maxTextLength int) (*schema.GenerateRequest, error) {
	var req schema.GenerateRequest

	if err := ParseRequestBody(w, r, &req); err != nil {
		return nil, err
	}

	if err := req.Validate(maxTextLength); err != nil {
		return nil, &HTTPError{Status: http.StatusBadRequest, Message: err.Error()}
	}

	return &req, nil
}

// IsHTTPError checks whether an error is an *HTTPError.
func IsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
