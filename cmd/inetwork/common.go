package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grouplab/inetwork/internal/ui"
	"github.com/grouplab/inetwork/pkg/tcp"
	"github.com/grouplab/inetwork/pkg/wire"
)

// Endpoint flags shared by the commands that listen or connect
var (
	listenHost    string
	listenPort    int
	noDiscovery   bool
	asyncDispatch bool
	targetAddr    string
	timeout       time.Duration
)

func addListenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&listenHost, "host", "", "Bind address (empty = all interfaces)")
	cmd.Flags().IntVar(&listenPort, "port", 0, "Listen port (0 = probe from server.base_port)")
	cmd.Flags().BoolVar(&noDiscovery, "no-discovery", false, "Do not answer discovery lookups")
	cmd.Flags().BoolVar(&asyncDispatch, "async", false, "Dispatch each received message on its own goroutine")
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&targetAddr, "to", "", "Connect to host:port instead of discovering the server by name")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Discovery timeout (default: discovery.timeout from config)")
}

// tcpConfig merges the flags of cmd over the loaded settings
func tcpConfig(cmd *cobra.Command) tcp.Config {
	cfg := settings.TCPConfig()
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = listenHost
	}
	if flags.Changed("port") {
		cfg.Port = listenPort
	}
	if flags.Changed("no-discovery") {
		cfg.Discoverable = !noDiscovery
	}
	if flags.Changed("async") {
		cfg.AsyncDispatch = asyncDispatch
	}
	if flags.Changed("timeout") {
		cfg.Discovery.Timeout = timeout
	}
	return cfg
}

// splitTarget parses host:port
func splitTarget(addr string) (string, int, error) {
	host, portText, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in %q", addr)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return host, port, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// printMessage writes one received message line to stdout
func printMessage(msg *wire.Message) {
	fmt.Println(ui.RenderMessage(time.Now(), msg))
}

func printEvent(format string, args ...any) {
	fmt.Println(ui.RenderEvent(time.Now(), fmt.Sprintf(format, args...)))
}

func printHeader(h *ui.Header) {
	if ui.IsTerminal() {
		fmt.Println(h.Render())
		return
	}
	fmt.Printf("%s: %s\n", h.Title, h.Command)
	for _, p := range h.Params {
		fmt.Printf("  %s: %s\n", p.Key, p.Value)
	}
}

func printResult(r *ui.Result) {
	if ui.IsTerminal() {
		fmt.Println(r.Render())
		return
	}
	status := "ok"
	if r.Type == ui.ResultFailure {
		status = "failed"
	}
	fmt.Printf("%s: %s\n", status, r.Title)
	for _, d := range r.Details {
		fmt.Printf("  %s: %s\n", d.Key, d.Value)
	}
	if r.Error != nil {
		fmt.Printf("  error: %v\n", r.Error)
	}
}

func discoverableText(on bool) string {
	if on {
		return "yes"
	}
	return "no"
}
