package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/f5-tts-go/f5-tts-go/internal/config"
	"github.com/f5-tts-go/f5-tts-go/internal/engine"
	"github.com/f5-tts-go/f5-tts-go/internal/schema"
)

var (
	serverURL string
	apiKey    string
	output    string
)

var rootCmd = &cobra.Command{
	Use:   "f5-ctl",
	Short: "F5-TTS server management tool",
	Long: `f5-ctl is a management tool for f5-server.

Commands:
  health   Check server health
  metrics  Print server counters
  check    Verify model artifacts and the inference worker`,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	RunE:  runHealth,
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print server counters",
	RunE:  runMetrics,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify model artifacts and the inference worker",
	RunE:  runCheck,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://127.0.0.1:8179", "f5-server URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "Output format: text, json")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("model-dir", "", "Model directory (default from config)")
	checkCmd.Flags().String("engine-url", "", "Inference worker URL (default from config)")
}

func runHealth(cmd *cobra.Command, args []string) error {
	resp, err := makeRequest(http.MethodGet, serverURL+"/health")
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(resp))
		return nil
	}

	var health schema.HealthResponse
	if err := json.Unmarshal(resp, &health); err != nil {
		return fmt.Errorf("invalid health response: %w", err)
	}

	fmt.Printf("Status: %s\n", health.Status)
	fmt.Printf("Device: %s\n", health.Device)
	fmt.Printf("Model:  %s\n", health.Model)
	fmt.Printf("Cached references: %d\n", health.CacheSize)
	return nil
}

func runMetrics(cmd *cobra.Command, args []string) error {
	resp, err := makeRequest(http.MethodGet, serverURL+"/metrics")
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(resp)
	return err
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("model-dir"); v != "" {
		cfg.Model.Dir = v
	}
	if v, _ := cmd.Flags().GetString("engine-url"); v != "" {
		cfg.Engine.URL = v
	}

	ok := true
	for _, path := range []string{cfg.Model.VocabPath(), cfg.Model.CheckpointPath()} {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Printf("✗ %s: missing\n", path)
			ok = false
			continue
		}
		fmt.Printf("✓ %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := engine.NewClient(&cfg.Engine).Health(ctx); err != nil {
		fmt.Printf("✗ inference worker %s: %v\n", cfg.Engine.URL, err)
		ok = false
	} else {
		fmt.Printf("✓ inference worker %s\n", cfg.Engine.URL)
	}

	if !ok {
		return fmt.Errorf("check failed")
	}
	return nil
}

func makeRequest(method, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}

	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
