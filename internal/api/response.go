package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/f5-tts-go/f5-tts-go/internal/schema"
)

// WriteError writes a rejection as {"error": message}.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, schema.ErrorResponse{Error: message})
}

// WriteFailure writes a generation failure as {"success": false, "error": message}.
func WriteFailure(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, schema.FailureResponse{Success: false, Error: message})
}

// WriteJSON writes the data structure as JSON.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteAudio writes a WAV body with its stage timings in X-TTS-Timings.
func WriteAudio(w http.ResponseWriter, data []byte, timings schema.Timings) {
	if encoded, err := json.Marshal(timings); err == nil {
		w.Header().Set("X-TTS-Timings", string(encoded))
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
