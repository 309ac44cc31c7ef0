package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/f5-tts-go/f5-tts-go/internal/config"
	"github.com/f5-tts-go/f5-tts-go/internal/metrics"
	"github.com/f5-tts-go/f5-tts-go/internal/model"
	"github.com/f5-tts-go/f5-tts-go/internal/schema"
	"github.com/f5-tts-go/f5-tts-go/internal/service"
	"github.com/f5-tts-go/f5-tts-go/internal/streaming"
)

// StatusProvider reports model readiness without blocking.
type StatusProvider interface {
	Ready() bool
	Status() model.Status
}

// Generator produces whole utterances.
type Generator interface {
	Generate(ctx context.Context, req *schema.GenerateRequest) (*service.Result, error)
	SaveOutput(wav []byte) (string, error)
}

// Streamer produces chunked utterances.
type Streamer interface {
	Stream(ctx context.Context, req streaming.Request) <-chan streaming.Event
}

// Handler serves the HTTP API.
type Handler struct {
	cfg       *config.Config
	model     StatusProvider
	generator Generator
	streamer  Streamer
	cacheSize func() int
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewHandler creates a Handler from the router dependencies.
func NewHandler(deps Deps) *Handler {
	cacheSize := deps.CacheSize
	if cacheSize == nil {
		cacheSize = func() int { return 0 }
	}

	return &Handler{
		cfg:       deps.Config,
		model:     deps.Model,
		generator: deps.Generator,
		streamer:  deps.Streamer,
		cacheSize: cacheSize,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// HandleHealth reports model and cache state. It never touches the engine.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.model.Status()

	status := schema.StatusLoading
	if st.Ready {
		status = schema.StatusReady
	}

	WriteJSON(w, http.StatusOK, schema.HealthResponse{
		Status:    status,
		Device:    string(st.Device),
		Model:     st.Model,
		CacheSize: h.cacheSize(),
	})
}

// HandleMetrics exposes counters in Prometheus text format.
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.Handler(h.metrics, h.cacheSize).ServeHTTP(w, r)
}

// HandleGenerate synthesizes a whole utterance.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parse(w, r)
	if !ok {
		return
	}

	h.logger.Info().
		Str("request_id", r.Header.Get("X-Request-ID")).
		Str("format", req.ResponseFormat).
		Str("gen_text", schema.EchoText(req.GenText)).
		Msg("Generating")

	res, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		h.writeGenerateError(w, r, err)
		return
	}

	if req.ResponseFormat == schema.FormatWAV {
		WriteAudio(w, res.WAV, res.Timings)
		return
	}

	path, err := h.generator.SaveOutput(res.WAV)
	if err != nil {
		h.writeGenerateError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, schema.GenerateResponse{
		Success: true,
		Output:  path,
		GenText: schema.EchoText(req.GenText),
		Timings: res.Timings,
	})
}

// HandleGenerateStream synthesizes an utterance as a server-sent event stream.
func (h *Handler) HandleGenerateStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parse(w, r)
	if !ok {
		return
	}

	events, err := newEventWriter(w)
	if err != nil {
		WriteFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log := h.logger.With().Str("request_id", r.Header.Get("X-Request-ID")).Logger()
	log.Info().Str("gen_text", schema.EchoText(req.GenText)).Msg("Streaming")

	start := time.Now()
	stream := h.streamer.Stream(ctx, streaming.Request{
		RefAudio: req.RefAudio,
		RefText:  req.RefText,
		GenText:  req.GenText,
		Speed:    req.SpeedOrDefault(),
	})

	for ev := range stream {
		if ev.Err != nil {
			log.Error().Err(ev.Err).Msg("Stream interrupted")
			_ = events.Send(schema.EventError, schema.ErrorEvent{Error: ev.Err.Error()})
			return
		}

		err := events.Send(schema.EventAudioChunk, schema.ChunkEvent{
			ChunkIndex:  ev.Chunk.Index,
			AudioBase64: base64.StdEncoding.EncodeToString(ev.Chunk.Audio),
			SampleRate:  ev.Chunk.SampleRate,
			Elapsed:     ev.Chunk.Elapsed,
		})
		if err != nil {
			log.Warn().Err(err).Int("chunk_index", ev.Chunk.Index).Msg("Client went away")
			cancel()
			drain(stream)
			return
		}
		log.Debug().Int("chunk_index", ev.Chunk.Index).Float64("elapsed", ev.Chunk.Elapsed).Msg("Streamed chunk")
	}

	if ctx.Err() != nil {
		return
	}

	total := schema.Seconds(time.Since(start).Seconds())
	_ = events.Send(schema.EventDone, schema.DoneEvent{TotalTime: total})
	log.Info().Float64("total_s", total).Msg("Stream done")
}

func (h *Handler) parse(w http.ResponseWriter, r *http.Request) (*schema.GenerateRequest, bool) {
	req, err := ParseGenerateRequest(w, r, h.cfg.Limits.MaxTextLength)
	if err != nil {
		if httpErr, ok := IsHTTPError(err); ok {
			WriteError(w, httpErr.Status, httpErr.Message)
			return nil, false
		}
		WriteError(w, http.StatusBadRequest, "Invalid request")
		return nil, false
	}
	return req, true
}

func (h *Handler) writeGenerateError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		h.logger.Debug().Err(err).Msg("Client cancelled generation")
		return
	}

	h.logger.Error().Err(err).Str("request_id", r.Header.Get("X-Request-ID")).Msg("Generation failed")
	WriteFailure(w, http.StatusInternalServerError, err.Error())
}

func drain(events <-chan streaming.Event) {
	for range events {
	}
}
