package engine

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Wire types exchanged with the resident Python inference worker.

type loadResponse struct {
	Device string `msgpack:"device"`
}

type preprocessRequest struct {
	RefAudio string `msgpack:"ref_audio"`
	RefText  string `msgpack:"ref_text"`
}

type generateRequest struct {
	RefAudio string  `msgpack:"ref_audio"`
	RefText  string  `msgpack:"ref_text"`
	GenText  string  `msgpack:"gen_text"`
	Speed    float64 `msgpack:"speed"`
	NFEStep  int     `msgpack:"nfe_step"`
}

type batchRequest struct {
	RefAudio  string   `msgpack:"ref_audio"`
	RefText   string   `msgpack:"ref_text"`
	Batches   []string `msgpack:"batches"`
	Speed     float64  `msgpack:"speed"`
	NFEStep   int      `msgpack:"nfe_step"`
	ChunkSize int      `msgpack:"chunk_size"`
}

// audioFrame carries one generated buffer. A frame with a non-empty Error
// terminates a batch stream.
type audioFrame struct {
	Samples    []float32 `msgpack:"samples"`
	SampleRate int       `msgpack:"sample_rate"`
	Error      string    `msgpack:"error,omitempty"`
}

// EncodeMsgpack encodes a value to MessagePack format.
func EncodeMsgpack(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

// DecodeMsgpack decodes MessagePack data into the provided value.
func DecodeMsgpack(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}
