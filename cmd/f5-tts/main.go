package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/f5-tts-go/f5-tts-go/internal/audio"
	"github.com/f5-tts-go/f5-tts-go/internal/schema"
)

var (
	serverURL     string
	outputFile    string
	streaming     bool
	referenceFile string
	referenceText string
	speed         float64
	apiKey        string
	timeout       time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "f5-tts [text]",
	Short: "Generate speech with a running f5-server",
	Long: `f5-tts sends text to f5-server and saves the generated speech.

Examples:
  # Clone a voice and save the result
  f5-tts --reference voice.wav --reference-text "Xin chào" -o out.wav "Hello there"

  # Stream chunks as they are generated and join them
  f5-tts --stream --reference voice.wav -o out.wav "A long paragraph..."

  # Slower speech
  f5-tts --speed 0.8 --reference voice.wav -o out.wav "Hello"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTTS,
}

func init() {
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", "http://127.0.0.1:8179", "f5-server URL")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output WAV file (default: stdout)")
	rootCmd.Flags().BoolVar(&streaming, "stream", false, "Use the streaming endpoint")
	rootCmd.Flags().StringVar(&referenceFile, "reference", "", "Reference audio file, as a path readable by the server")
	rootCmd.Flags().StringVar(&referenceText, "reference-text", "", "Transcript of the reference audio")
	rootCmd.Flags().Float64Var(&speed, "speed", 1.0, "Speech speed multiplier")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Request timeout")
	_ = rootCmd.MarkFlagRequired("reference")
}

func runTTS(cmd *cobra.Command, args []string) error {
	req := schema.GenerateRequest{
		RefAudio:       referenceFile,
		RefText:        referenceText,
		GenText:        strings.Join(args, " "),
		Speed:          &speed,
		ResponseFormat: schema.FormatWAV,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var (
		wav []byte
		err error
	)
	if streaming {
		wav, err = streamTTS(ctx, serverURL, &req, os.Stderr)
	} else {
		wav, err = generateTTS(ctx, serverURL, &req, os.Stderr)
	}
	if err != nil {
		return err
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, wav, 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Audio saved to %s (%s)\n", outputFile, humanize.Bytes(uint64(len(wav))))
		return nil
	}

	_, err = os.Stdout.Write(wav)
	return err
}

func generateTTS(ctx context.Context, baseURL string, req *schema.GenerateRequest, log io.Writer) ([]byte, error) {
	resp, err := post(ctx, baseURL+"/generate", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if timings := resp.Header.Get("X-TTS-Timings"); timings != "" {
		fmt.Fprintf(log, "Timings: %s\n", timings)
	}
	return wav, nil
}

// streamTTS reads audio-chunk events until done and joins the chunks into one WAV.
func streamTTS(ctx context.Context, baseURL string, req *schema.GenerateRequest, log io.Writer) ([]byte, error) {
	resp, err := post(ctx, baseURL+"/generate-stream", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		pcm        []int16
		sampleRate int
		event      string
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
			continue
		case !strings.HasPrefix(line, "data: "):
			continue
		}
		data := []byte(strings.TrimPrefix(line, "data: "))

		switch event {
		case schema.EventAudioChunk:
			var chunk schema.ChunkEvent
			if err := json.Unmarshal(data, &chunk); err != nil {
				return nil, fmt.Errorf("invalid chunk event: %w", err)
			}
			raw, err := base64.StdEncoding.DecodeString(chunk.AudioBase64)
			if err != nil {
				return nil, fmt.Errorf("invalid chunk audio: %w", err)
			}
			buf, err := audio.DecodeWAV(raw)
			if err != nil {
				return nil, fmt.Errorf("chunk %d: %w", chunk.ChunkIndex, err)
			}
			pcm = append(pcm, buf.PCM...)
			sampleRate = buf.SampleRate
			fmt.Fprintf(log, "Chunk %d at %.2fs\n", chunk.ChunkIndex, chunk.Elapsed)

		case schema.EventDone:
			var done schema.DoneEvent
			_ = json.Unmarshal(data, &done)
			fmt.Fprintf(log, "Done in %.2fs\n", done.TotalTime)
			if sampleRate == 0 {
				return nil, fmt.Errorf("stream produced no audio")
			}
			return audio.EncodeWAV(audio.Buffer{PCM: pcm, SampleRate: sampleRate})

		case schema.EventError:
			var e schema.ErrorEvent
			_ = json.Unmarshal(data, &e)
			return nil, fmt.Errorf("stream failed: %s", e.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	return nil, fmt.Errorf("stream ended without a done event")
}

func post(ctx context.Context, url string, req *schema.GenerateRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	return resp, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
