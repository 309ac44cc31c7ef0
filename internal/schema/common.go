package schema

import "math"

// Health states reported by /health.
const (
	StatusReady   = "ready"
	StatusLoading = "loading"
)

// ErrorResponse represents a rejected request.
type ErrorResponse struct {
	Error string `json:"error" msgpack:"error"`
}

// FailureResponse represents a request that failed during generation.
type FailureResponse struct {
	Success bool   `json:"success" msgpack:"success"`
	Error   string `json:"error" msgpack:"error"`
}

// HealthResponse represents the health check response payload.
type HealthResponse struct {
	Status    string `json:"status" msgpack:"status"`
	Device    string `json:"device" msgpack:"device"`
	Model     string `json:"model" msgpack:"model"`
	CacheSize int    `json:"cache_size" msgpack:"cache_size"`
}

// Timings are stage durations in seconds.
type Timings struct {
	Preprocess float64 `json:"preprocess" msgpack:"preprocess"`
	Generate   float64 `json:"generate" msgpack:"generate"`
	Total      float64 `json:"total" msgpack:"total"`
}

// Seconds rounds a duration in seconds to milliseconds.
func Seconds(s float64) float64 {
	return math.Round(s*1000) / 1000
}
