// Inetwork is a command-line tool for inetwork servers, publishers and
// subscriptions.
//
// It can run an echo or broadcast server, run a publisher, subscribe to a
// publisher with templates, send one-off messages, discover servers on the
// local network and stream received messages to WebSocket clients.
//
// Usage:
//
//	inetwork [command] [flags]
//
// See 'inetwork --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grouplab/inetwork/internal/config"
	"github.com/grouplab/inetwork/internal/logging"
	"github.com/grouplab/inetwork/internal/metrics"
	"github.com/grouplab/inetwork/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath  string
	logLevel    string
	metricsAddr string
)

// settings is loaded once before any subcommand runs
var settings *config.Settings

var metricsServer *metrics.Server

var rootCmd = &cobra.Command{
	Use:   "inetwork",
	Short: "Peer discovery, messaging and pub/sub toolkit",
	Long: `A command-line tool for inetwork endpoints.

Servers and publishers listen on TCP and answer multicast discovery
lookups, so peers on the same network can find them by name. Messages are
named records of typed fields; subscriptions receive only the messages
matching their registered templates.

Settings are read from $INETWORK_CONFIG or the user config directory
(~/.config/inetwork/config.yaml on Linux and macOS). Flags override them.`,
	Version:           version.Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: $INETWORK_CONFIG or the user config directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); logging is off when empty")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(versionCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		settings, err = config.LoadFile(configPath)
	} else {
		settings, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("log-level") {
		settings.LogLevel = logLevel
	}
	if cmd.Flags().Changed("metrics-addr") {
		settings.Metrics.Addr = metricsAddr
	}

	if err := logging.Initialize(settings.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logging.Debug("Settings loaded",
		zap.String("command", cmd.Name()),
		zap.String("version", version.Full()),
	)

	if settings.Metrics.Addr != "" && cmd != versionCmd {
		metricsServer = metrics.NewServer(settings.Metrics.Addr)
		if err := metricsServer.Start(); err != nil {
			return err
		}
	}
	return nil
}

func teardown() {
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := metricsServer.Stop(ctx); err != nil {
			logging.LogSuppressed("metrics stop", err)
		}
		metricsServer = nil
	}
	logging.Sync()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Banner("inetwork"))
	},
}
