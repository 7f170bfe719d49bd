package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dreamup/touchbot/internal/logging"
)

var (
	// Version information
	version = "0.1.0"

	// Global flags
	configFile string
	logLevel   string

	cfg    *Config
	logger zerolog.Logger
)

func main() {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "touchbot",
	Short: "Touchbot - screen-driven touch automation for Android games",
	Long: `Touchbot drives an Android device through adb. It finds UI elements on
screen with template matching, pages through scrolling shop lists, records
pointer gestures and replays labeled gesture scripts.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		cfg = loaded
		logger = logging.Setup(cfg.Environment, cfg.LogLevel)
		logger.Debug().Str("command", cmd.Name()).Msg("Configuration loaded")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./touchbot.yaml or $HOME/.touchbot/touchbot.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(segmentCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(sellCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(farmCmd)
	rootCmd.AddCommand(runsCmd)
}
