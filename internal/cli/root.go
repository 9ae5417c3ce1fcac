package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/streamkeeper/internal/control"
	"github.com/vietddude/streamkeeper/internal/core/config"
	"github.com/vietddude/streamkeeper/internal/failure"
)

var (
	cfgPath   string
	isDebug   bool
	receivers = failure.NewRegistry()
)

var rootCmd = &cobra.Command{
	Use:           "streamkeeper",
	Short:         "Failed message retries and stream archival",
	Long:          `Streamkeeper records failed stream deliveries for retry and archives messages out of Redis streams into durable storage.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Receivers registered in registry can be resolved by
// name when failed messages are retried.
func Execute(registry *failure.Registry) {
	if registry != nil {
		receivers = registry
	}
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig reads the config file and sets up logging from it.
func loadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		return nil, err
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg, nil
}

// withApp builds the application for a one-shot command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *control.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := control.NewApp(ctx, cfg, receivers)
	if err != nil {
		return err
	}
	defer func() {
		_ = app.Close()
	}()

	return fn(ctx, app)
}
