package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/izbachat/izba/internal/app"
	"github.com/izbachat/izba/internal/config"
	"github.com/izbachat/izba/internal/log"
)

var (
	flagConfig   string
	flagAddr     string
	flagLogLevel string
	flagDBPath   string
)

var rootCmd = &cobra.Command{
	Use:   "izba-server",
	Short: "Izba chat server",
	Long: `Izba is a room-based chat server. Clients claim a display name,
browse public and private rooms, and chat in one open room at a time
over a websocket connection.`,
	RunE: runServer,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to config file")
	rootCmd.Flags().StringVar(&flagAddr, "addr", "", "HTTP listen address (overrides config)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.Flags().StringVar(&flagDBPath, "db", "", "sqlite database path (overrides config)")
}

func runServer(cmd *cobra.Command, _ []string) error {
	bootLogger := log.New("info")

	cfg, configPath, err := config.Load(bootLogger, flagConfig)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagDBPath != "" {
		cfg.DatabasePath = flagDBPath
	}

	logger := log.New(cfg.LogLevel)
	logger.Info().Str("config", configPath).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
