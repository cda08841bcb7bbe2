package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driftsync/driftsync/internal/provider"
	"github.com/driftsync/driftsync/internal/utils"
	"github.com/driftsync/driftsync/internal/version"
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "driftsync",
	Short:   "Bidirectional sync between local project trees and remote projects",
	Version: version.Detailed(),
}

func init() {
	rootCmd.PersistentFlags().String("api-url", "", "Remote API base URL")
	rootCmd.PersistentFlags().String("session-key", "", "Remote API session key")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	viper.SetEnvPrefix("DRIFTSYNC")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("session_key", rootCmd.PersistentFlags().Lookup("session-key"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func main() {
	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	for _, arg := range os.Args[1:] {
		if arg == "--verbose" {
			level = slog.LevelDebug
		}
	}

	stderrHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	handlers := []slog.Handler{stderrHandler}
	if logPath := defaultLogFilePath(); logPath != "" {
		if err := utils.EnsureParent(logPath); err == nil {
			if file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
			}
		}
	}

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(handlers...)))
}

func defaultLogFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".driftsync", "logs", "driftsync.log")
}

// newProvider builds the remote API client from flags/env.
func newProvider() (provider.Provider, error) {
	apiURL := viper.GetString("api_url")
	sessionKey := viper.GetString("session_key")
	if apiURL == "" {
		return nil, fmt.Errorf("no API URL configured (set --api-url or DRIFTSYNC_API_URL)")
	}
	if sessionKey == "" {
		return nil, fmt.Errorf("no session key configured (set --session-key or DRIFTSYNC_SESSION_KEY)")
	}
	return provider.NewHTTPClient(apiURL, sessionKey), nil
}
