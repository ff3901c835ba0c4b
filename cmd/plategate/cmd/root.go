package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/plategate/internal/config"
	"github.com/MeKo-Tech/plategate/internal/version"
)

var (
	// Global configuration, resolved before every command runs.
	globalConfig *config.Config
	// Loader that produced globalConfig.
	configLoader *config.Loader
	// Configuration file path.
	cfgFile string
	// Destination of the structured log. Tests point it elsewhere.
	logOutput io.Writer = os.Stderr
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "plategate",
	Short: "License plate recognition for parking gates",
	Long: `plategate finds license plates in camera frames, reads them with an OCR
model, validates them and reports entries and exits to the parking service.

Examples:
  plategate serve --port 5000
  plategate detect car.jpg --format json
  plategate validate AB123CD
  plategate capture --direction exit`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the root command. It is called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for tests.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is plategate.yaml in ., $XDG_CONFIG_HOME/plategate, $HOME, /etc/plategate)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("version", false, "print version information and exit")
}

// flagKeys maps command-line flags onto configuration keys. Flags a command
// does not define are skipped.
var flagKeys = map[string]string{
	"verbose":             "verbose",
	"log-level":           "log_level",
	"host":                "server.host",
	"port":                "server.port",
	"cors-origin":         "server.cors_origin",
	"max-upload-size":     "server.max_upload_mb",
	"requests-per-minute": "server.requests_per_minute",
	"det-model":           "pipeline.detector.model_path",
	"rec-model":           "pipeline.recognizer.model_path",
	"dict":                "pipeline.recognizer.dict_path",
	"onnx-lib":            "pipeline.library_path",
	"gpu":                 "pipeline.gpu.use_gpu",
	"parking-id":          "pipeline.parking_id",
	"camera-id":           "pipeline.camera_id",
	"default-direction":   "pipeline.default_direction",
	"workers":             "pipeline.workers",
	"camera-url":          "camera.url",
	"camera-local-path":   "camera.local_path",
	"webhook-url":         "webhook.url",
	"store":               "store.path",
}

// setup loads the configuration with the running command's flags bound and
// installs the JSON logger.
func setup(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	configLoader = config.NewLoaderWithViper(v)
	cfg, err := configLoader.LoadWithFile(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	globalConfig = cfg

	slog.SetDefault(slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel(cfg),
	})))
	if used := configLoader.GetConfigFileUsed(); used != "" {
		slog.Debug("Loaded configuration", "file", used)
	}
	return nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

func logLevel(cfg *config.Config) slog.Level {
	if cfg.Verbose {
		return slog.LevelDebug
	}
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetConfig returns the configuration resolved for the running command.
func GetConfig() *config.Config {
	return globalConfig
}
