package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grouplab/inetwork/internal/logging"
	"github.com/grouplab/inetwork/internal/ui"
	"github.com/grouplab/inetwork/pkg/tcp"
	"github.com/grouplab/inetwork/pkg/wire"
)

var serveMode string

var serveCmd = &cobra.Command{
	Use:   "serve <name>",
	Short: "Run a TCP server",
	Long: `Run a named TCP server and print every message it receives.

In echo mode (the default) each message is sent back to its sender. In
broadcast mode it is relayed to every other connected client. In quiet
mode messages are only printed.

The server answers discovery lookups for its name unless --no-discovery
is given, so clients can reach it with 'inetwork send <name>'.`,
	Example: `  # Echo server found by discovery as "echo"
  inetwork serve echo

  # Chat-style relay on a fixed port
  inetwork serve chat --mode broadcast --port 12000`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	addListenFlags(serveCmd)
	serveCmd.Flags().StringVar(&serveMode, "mode", "echo", "Reply mode (echo, broadcast, quiet)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	switch serveMode {
	case "echo", "broadcast", "quiet":
	default:
		return fmt.Errorf("invalid --mode %q (want echo, broadcast or quiet)", serveMode)
	}

	cfg := tcpConfig(cmd)
	srv, err := tcp.NewServer(args[0], cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	srv.OnConnection(func(c *tcp.Connection, ev tcp.ConnectionEvent) {
		printEvent("%s %s", c.RemoteAddr(), ev)
		if ev != tcp.Connected {
			return
		}
		handle := func(from *tcp.Connection, msg *wire.Message) {
			printMessage(msg)
			reply(srv, from, msg)
		}
		c.OnMessage(handle)
		c.OnInternalMessage(handle)
	})

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer srv.Stop()

	printHeader(ui.NewHeader("Server", "inetwork serve "+args[0]).
		Add("Address", srv.Addr()).
		Add("Port", strconv.Itoa(srv.Port())).
		Add("Mode", serveMode).
		Add("Discoverable", discoverableText(srv.IsDiscoverable())))

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()
	return nil
}

func reply(srv *tcp.Server, from *tcp.Connection, msg *wire.Message) {
	switch serveMode {
	case "echo":
		if err := from.SendMessage(msg); err != nil {
			logging.Warn("Echo failed",
				zap.String("remote_addr", from.RemoteAddr()),
				zap.Error(err),
			)
		}
	case "broadcast":
		n := srv.BroadcastMessage(msg, from)
		logging.Debug("Relayed message",
			zap.String("name", msg.Name()),
			zap.Int("recipients", n),
		)
	}
}
