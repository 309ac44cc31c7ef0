package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/f5-tts-go/f5-tts-go/internal/audio"
	"github.com/f5-tts-go/f5-tts-go/internal/config"
)

const contentTypeMsgpack = "application/msgpack"

// Client drives a resident Python inference worker over MessagePack/HTTP.
type Client struct {
	httpClient *http.Client
	endpoint   string
	nfeStep    int
	chunkSize  int
}

var _ Engine = (*Client)(nil)

// NewClient creates a worker client. A zero timeout leaves generation unbounded.
func NewClient(cfg *config.EngineConfig) *Client {
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}

	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		endpoint:   cfg.URL,
		nfeStep:    cfg.NFEStep,
		chunkSize:  cfg.StreamChunkSize,
	}
}

// Health checks if the inference worker is reachable.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// Load asks the worker to load the vocoder and model weights.
func (c *Client) Load(ctx context.Context, artifacts Artifacts) (Device, error) {
	var out loadResponse
	if err := c.call(ctx, "/v1/load", artifacts, &out); err != nil {
		return "", err
	}
	return Device(out.Device), nil
}

// PreprocessRef asks the worker to normalize the reference audio and transcript.
func (c *Client) PreprocessRef(ctx context.Context, path, text string) (*Reference, error) {
	var ref Reference
	if err := c.call(ctx, "/v1/preprocess", preprocessRequest{RefAudio: path, RefText: text}, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// Generate synthesizes text in the reference voice.
func (c *Client) Generate(ctx context.Context, ref *Reference, text string, speed float64) (audio.Buffer, error) {
	if text == "" {
		return audio.Buffer{}, ErrEmptyText
	}

	req := generateRequest{
		RefAudio: ref.AudioPath,
		RefText:  ref.Text,
		GenText:  text,
		Speed:    speed,
		NFEStep:  c.nfeStep,
	}

	var frame audioFrame
	if err := c.call(ctx, "/v1/generate", req, &frame); err != nil {
		return audio.Buffer{}, err
	}
	if frame.Error != "" {
		return audio.Buffer{}, &BackendError{StatusCode: http.StatusOK, Message: frame.Error}
	}

	return audio.Buffer{Float: frame.Samples, SampleRate: frame.SampleRate}, nil
}

// GenerateBatches streams one MessagePack frame per batch from the worker.
func (c *Client) GenerateBatches(ctx context.Context, ref *Reference, batches []string, speed float64, yield YieldFunc) error {
	if len(batches) == 0 {
		return ErrEmptyText
	}

	req := batchRequest{
		RefAudio:  ref.AudioPath,
		RefText:   ref.Text,
		Batches:   batches,
		Speed:     speed,
		NFEStep:   c.nfeStep,
		ChunkSize: c.chunkSize,
	}

	resp, err := c.post(ctx, "/v1/generate/batches", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dec := msgpack.NewDecoder(resp.Body)
	for {
		var frame audioFrame
		if err := dec.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to decode audio frame: %w", err)
		}

		if frame.Error != "" {
			return &BackendError{StatusCode: resp.StatusCode, Message: frame.Error}
		}

		if err := yield(audio.Buffer{Float: frame.Samples, SampleRate: frame.SampleRate}); err != nil {
			return err
		}
	}
}

// ChunkText splits text locally; batch boundaries do not depend on the model.
func (c *Client) ChunkText(text string, maxChars int) []string {
	return ChunkText(text, maxChars)
}

func (c *Client) call(ctx context.Context, path string, in, out interface{}) error {
	resp, err := c.post(ctx, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := DecodeMsgpack(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in interface{}) (*http.Response, error) {
	body, err := EncodeMsgpack(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentTypeMsgpack)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrBackendTimeout, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &BackendError{StatusCode: resp.StatusCode, Message: string(bodyBytes)}
	}

	return resp, nil
}
