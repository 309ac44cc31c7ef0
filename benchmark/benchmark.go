package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/f5-tts-go/f5-tts-go/internal/schema"
)

// target is one entry of the -targets file.
type target struct {
	RefAudio string `json:"ref_audio"`
	RefText  string `json:"ref_text"`
	GenText  string `json:"gen_text"`
}

type benchmarkClient struct {
	baseURL     string
	streaming   bool
	fallback    target
	targets     []target
	targetIndex uint64
	client      *http.Client
}

type runResult struct {
	duration   time.Duration
	success    bool
	statusCode int
	err        error
	firstByte  time.Duration
	firstChunk time.Duration
	chunks     int
	bytes      int64
}

func newBenchmarkClient(baseURL string, streaming bool, fallback target, targets []target) *benchmarkClient {
	return &benchmarkClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		streaming: streaming,
		fallback:  fallback,
		targets:   targets,
		client:    &http.Client{Timeout: 10 * time.Minute},
	}
}

func (c *benchmarkClient) nextTarget() target {
	if len(c.targets) == 0 {
		return c.fallback
	}

	idx := atomic.AddUint64(&c.targetIndex, 1)
	return c.targets[(idx-1)%uint64(len(c.targets))]
}

func (c *benchmarkClient) Do(ctx context.Context) runResult {
	start := time.Now()
	tgt := c.nextTarget()

	payload := schema.GenerateRequest{
		RefAudio:       tgt.RefAudio,
		RefText:        tgt.RefText,
		GenText:        tgt.GenText,
		ResponseFormat: schema.FormatWAV,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return runResult{err: fmt.Errorf("encode request: %w", err)}
	}

	path := "/generate"
	if c.streaming {
		path = "/generate-stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return runResult{err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "f5-tts-benchmark/0.1")

	var firstByte time.Duration
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByte = time.Since(start)
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := c.client.Do(req)
	if err != nil {
		return runResult{duration: time.Since(start), err: err}
	}
	defer resp.Body.Close()

	res := runResult{statusCode: resp.StatusCode, firstByte: firstByte}
	if c.streaming {
		res.firstChunk, res.chunks, res.bytes, err = readEvents(resp.Body, start)
	} else {
		res.bytes, err = io.Copy(io.Discard, resp.Body)
	}

	res.duration = time.Since(start)
	res.err = err
	res.success = err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300
	return res
}

// readEvents consumes an event stream, timing the first audio chunk. A
// terminal error event is returned as an error.
func readEvents(r io.Reader, start time.Time) (firstChunk time.Duration, chunks int, n int64, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		n += int64(len(line)) + 1

		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
			if event == schema.EventAudioChunk {
				if chunks == 0 {
					firstChunk = time.Since(start)
				}
				chunks++
			}
			continue
		}
		if event == schema.EventError && strings.HasPrefix(line, "data: ") {
			return firstChunk, chunks, n, fmt.Errorf("stream error: %s", strings.TrimPrefix(line, "data: "))
		}
	}
	return firstChunk, chunks, n, scanner.Err()
}

type summary struct {
	durations   []time.Duration
	firstBytes  []time.Duration
	firstChunks []time.Duration
	total       int
	success     int
	chunks      int
	bytes       int64
}

func (s *summary) add(result runResult) {
	s.total++
	if !result.success {
		return
	}
	s.success++
	s.durations = append(s.durations, result.duration)
	if result.firstByte > 0 {
		s.firstBytes = append(s.firstBytes, result.firstByte)
	}
	if result.firstChunk > 0 {
		s.firstChunks = append(s.firstChunks, result.firstChunk)
	}
	s.chunks += result.chunks
	s.bytes += result.bytes
}

func percentile(values []time.Duration, p float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	rank := p * float64(len(values)-1)
	lower := int(rank)
	upper := lower + 1
	if upper >= len(values) {
		return values[lower]
	}
	weight := rank - float64(lower)
	return time.Duration(float64(values[lower])*(1-weight) + float64(values[upper])*weight)
}

func average(values []time.Duration) time.Duration {
	if len(values) == 0 {
		return 0
	}
	var total time.Duration
	for _, v := range values {
		total += v
	}
	return total / time.Duration(len(values))
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []target
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func main() {
	baseURL := flag.String("base-url", "http://127.0.0.1:8179", "f5-server base URL")
	count := flag.Int("count", 1, "Number of requests to send")
	concurrency := flag.Int("concurrency", 1, "Number of concurrent clients")
	streaming := flag.Bool("streaming", false, "Use /generate-stream")
	refAudio := flag.String("ref-audio", "", "Reference audio path on the server")
	refText := flag.String("ref-text", "", "Reference transcript")
	text := flag.String("text", "Xin chào, đây là một bài kiểm tra tốc độ.", "Text to synthesize")
	targetsFile := flag.String("targets", "", "Path to JSON file with request targets")
	loop := flag.Bool("loop", false, "Send requests continuously until interrupted")
	flag.Parse()

	var targets []target
	if *targetsFile != "" {
		loaded, err := loadTargets(*targetsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load targets: %v\n", err)
			os.Exit(1)
		}
		targets = loaded
	} else if *refAudio == "" {
		fmt.Fprintln(os.Stderr, "-ref-audio or -targets is required")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := newBenchmarkClient(*baseURL, *streaming, target{RefAudio: *refAudio, RefText: *refText, GenText: *text}, targets)

	jobs := make(chan struct{}, *concurrency)
	results := make(chan runResult, *concurrency)
	var workers sync.WaitGroup

	for i := 0; i < *concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				results <- client.Do(ctx)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; *loop || i < *count; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- struct{}{}:
			}
		}
	}()

	go func() {
		workers.Wait()
		close(results)
	}()

	var sum summary
	for res := range results {
		sum.add(res)
		if res.err != nil {
			fmt.Fprintf(os.Stderr, "request error: %v\n", res.err)
		}
	}

	fmt.Printf("Total requests: %d\n", sum.total)
	fmt.Printf("Success: %d, Failed: %d\n", sum.success, sum.total-sum.success)
	fmt.Printf("Received: %s\n", humanize.Bytes(uint64(sum.bytes)))

	if len(sum.durations) > 0 {
		fmt.Printf("Average duration: %s\n", average(sum.durations))
		fmt.Printf("P50: %s\n", percentile(sum.durations, 0.50))
		fmt.Printf("P90: %s\n", percentile(sum.durations, 0.90))
		fmt.Printf("P95: %s\n", percentile(sum.durations, 0.95))
	}

	if *streaming {
		fmt.Println("Streaming metrics:")
		fmt.Printf("  Chunks: %d\n", sum.chunks)
		if len(sum.firstChunks) > 0 {
			fmt.Printf("  Avg time to first chunk: %s\n", average(sum.firstChunks))
			fmt.Printf("  P50 time to first chunk: %s\n", percentile(sum.firstChunks, 0.50))
		}
		if len(sum.firstBytes) > 0 {
			fmt.Printf("  Avg time to headers: %s\n", average(sum.firstBytes))
		}
	}
}
