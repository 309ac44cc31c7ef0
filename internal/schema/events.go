package schema

// Server-sent event names.
const (
	EventAudioChunk = "audio-chunk"
	EventDone       = "done"
	EventError      = "error"
)

// ChunkEvent carries one WAV-encoded batch.
type ChunkEvent struct {
	ChunkIndex  int     `json:"chunk_index"`
	AudioBase64 string  `json:"audio_base64"`
	SampleRate  int     `json:"sample_rate"`
	Elapsed     float64 `json:"elapsed"`
}

// DoneEvent terminates a successful stream.
type DoneEvent struct {
	TotalTime float64 `json:"total_time"`
}

// ErrorEvent terminates a failed stream.
type ErrorEvent struct {
	Error string `json:"error"`
}
