package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"feedsync/internal/app"
	"feedsync/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger     *zap.Logger
	settings   *config.Config
	configPath string
	apiURL     string
	redisAddr  string
	badgerPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "feedsync",
	Short:         "feedsync - a caching client for the articles API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		settings = cfg
		logger, err = newLogger(cfg.LogLevel)
		return err
	},
}

// loadConfig reads the config file and lets explicitly set flags win over
// both the file and the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("api") {
		cfg.APIURL = apiURL
	}
	if flags.Changed("redis") {
		cfg.RedisAddr = redisAddr
	}
	if flags.Changed("badger") {
		cfg.BadgerPath = badgerPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	if lvl > zapcore.DebugLevel {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "console"
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// withApp builds the client, runs fn and saves state on the way out.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(settings, logger)
	if err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}
	if err := a.Start(ctx); err != nil {
		if closeErr := a.Close(context.Background()); closeErr != nil {
			logger.Warn("shutdown", zap.Error(closeErr))
		}
		return err
	}

	runErr := fn(ctx, a)
	if err := a.Close(context.Background()); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	return runErr
}

func main() {
	defer func() {
		if logger != nil {
			logger.Sync()
		}
	}()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.DefaultPath(), "Path to the YAML config file")
	flags.StringVar(&apiURL, "api", "", "Base URL of the articles API")
	flags.StringVar(&redisAddr, "redis", "", "Address of Redis server")
	flags.StringVar(&badgerPath, "badger", "", "Path to BadgerDB data directory (empty: no cache snapshot)")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(authCommands()...)
	rootCmd.AddCommand(readCommands()...)
	rootCmd.AddCommand(writeCommands()...)
	rootCmd.AddCommand(profileCommands()...)
	rootCmd.AddCommand(shellCmd, devServerCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
