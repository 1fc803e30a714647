// CLAUDE:SUMMARY CLI entry point for tagqa: HTTP server, one-shot examination, preview monitoring, container listing and MCP over stdio.
// Command tagqa checks that pages push the tracking data their specs promise
// and that Tag Manager previews only fire the expected measurement ids.
//
// Usage:
//
//	tagqa serve --config tagqa.yaml
//	tagqa examine --base appXXX --table Specs --view QA
//	tagqa monitor "https://tagassistant.google.com/?url=..." --expected G-XXXX --loops 5
//	tagqa containers https://example.com
//	tagqa mcp
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tagqa/tagcheck"
)

var (
	configPath string
	logLevel   string
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "tagqa",
	Short:         "Tracking instrumentation QA",
	Long:          "Examines data layer and data-* attribute specs stored in Airtable against live pages, and watches Tag Manager previews for unexpected measurement ids.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(logLevel)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to tagqa.yaml config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.AddCommand(serveCmd, examineCmd, monitorCmd, containersCmd, mcpCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger == nil {
			logger = newLogger(logLevel)
		}
		logger.Error("tagqa: fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(name string) *slog.Logger {
	var level slog.Level
	switch name {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*tagcheck.Config, error) {
	if configPath == "" {
		return tagcheck.DefaultConfig(), nil
	}
	cfg, err := tagcheck.LoadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openService loads the configuration, lets the command adjust it, and
// builds the service.
func openService(ctx context.Context, adjust func(*tagcheck.Config)) (*tagcheck.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}
	return tagcheck.Open(ctx, cfg, logger)
}
