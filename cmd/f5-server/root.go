package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/f5-tts-go/f5-tts-go/internal/config"
)

var (
	cfgFile string

	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "f5-server",
	Short: "Persistent F5-TTS inference server",
	Long: `f5-server keeps the F5-TTS model and vocoder resident on the GPU and
serves generation requests over loopback HTTP. Reference voices are
preprocessed once and cached.

Start the server:
  f5-server

Start with custom settings:
  f5-server --listen 127.0.0.1:9000 --model-dir ./F5-TTS-Vietnamese-ViVoice

Drive the model through the CLI instead of the resident worker:
  f5-server --engine command --engine-command f5-tts_infer-cli

Use environment variables:
  F5_LISTEN=127.0.0.1:9000 F5_ENGINE_URL=http://127.0.0.1:8180 f5-server`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("f5-server %s\n", Version)
		fmt.Printf("  Commit:     %s\n", Commit)
		fmt.Printf("  Build Date: %s\n", BuildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := config.Default()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	rootCmd.Flags().String("listen", defaults.Server.Listen, "Server listen address")
	rootCmd.Flags().Duration("read-timeout", defaults.Server.ReadTimeout, "HTTP read timeout")
	rootCmd.Flags().Duration("write-timeout", defaults.Server.WriteTimeout, "HTTP write timeout (0 = none)")

	rootCmd.Flags().String("engine", defaults.Engine.Kind, "Inference engine: http or command")
	rootCmd.Flags().String("engine-url", defaults.Engine.URL, "Resident inference worker URL")
	rootCmd.Flags().String("engine-command", defaults.Engine.Command, "Inference CLI for the command engine")
	rootCmd.Flags().Int("nfe-step", defaults.Engine.NFEStep, "Flow-matching steps per generation")

	rootCmd.Flags().String("model-dir", defaults.Model.Dir, "Directory holding vocab and checkpoint files")
	rootCmd.Flags().String("device", defaults.Model.Device, "Accelerator device requested from the engine")
	rootCmd.Flags().Bool("require-accelerator", defaults.Model.RequireAccelerator, "Refuse to start on CPU")
	rootCmd.Flags().String("output-dir", defaults.Model.OutputDir, "Directory for JSON-mode output files")

	rootCmd.Flags().Int("cache-max-entries", defaults.Cache.MaxEntries, "Preprocessed references kept resident")

	rootCmd.Flags().String("api-key", "", "API key for authentication (empty = no auth)")
	rootCmd.Flags().Int("max-text-length", 0, "Maximum gen_text length in characters (0 = unlimited)")

	rootCmd.Flags().String("log-level", defaults.Logging.Level, "Log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-format", defaults.Logging.Format, "Log format (json, text)")
	rootCmd.Flags().String("log-file", "", "Also write logs to this file, rotated")

	bindFlags()

	rootCmd.AddCommand(versionCmd)
}

var flagBindings = []struct {
	key  string
	flag string
}{
	{"server.listen", "listen"},
	{"server.read_timeout", "read-timeout"},
	{"server.write_timeout", "write-timeout"},
	{"engine.kind", "engine"},
	{"engine.url", "engine-url"},
	{"engine.command", "engine-command"},
	{"engine.nfe_step", "nfe-step"},
	{"model.dir", "model-dir"},
	{"model.device", "device"},
	{"model.require_accelerator", "require-accelerator"},
	{"model.output_dir", "output-dir"},
	{"cache.max_entries", "cache-max-entries"},
	{"auth.api_key", "api-key"},
	{"limits.max_text_length", "max-text-length"},
	{"logging.level", "log-level"},
	{"logging.format", "log-format"},
	{"logging.file", "log-file"},
}

func bindFlags() {
	for _, b := range flagBindings {
		flag := rootCmd.Flags().Lookup(b.flag)
		if flag == nil {
			continue
		}
		_ = viper.BindPFlag(b.key, flag)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("F5")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("server.listen", "F5_LISTEN")
	_ = viper.BindEnv("engine.kind", "F5_ENGINE")
	_ = viper.BindEnv("engine.url", "F5_ENGINE_URL")
	_ = viper.BindEnv("model.dir", "F5_MODEL_DIR")
	_ = viper.BindEnv("model.device", "F5_DEVICE")
	_ = viper.BindEnv("auth.api_key", "F5_API_KEY")
	_ = viper.BindEnv("limits.max_text_length", "F5_MAX_TEXT_LENGTH")
	_ = viper.BindEnv("logging.level", "F5_LOG_LEVEL")
	_ = viper.BindEnv("logging.format", "F5_LOG_FORMAT")

	bindFlags()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
