package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/grouplab/inetwork/internal/tap"
	"github.com/grouplab/inetwork/internal/ui"
	"github.com/grouplab/inetwork/pkg/pubsub"
	"github.com/grouplab/inetwork/pkg/tcp"
	"github.com/grouplab/inetwork/pkg/wire"
)

var (
	tapListen    string
	tapPath      string
	tapTemplates []string
	tapServer    bool
	tapPrint     bool
)

var tapCmd = &cobra.Command{
	Use:   "tap [publisher]",
	Short: "Stream received messages to WebSocket clients as JSON",
	Long: `Join a publisher as a subscription (or a plain server as a client with
--server) and push every message it receives to WebSocket clients as JSON:

  {"name": "reading", "internal": false,
   "fields": [{"name": "celsius", "type": "Double", "value": 21.5}]}

Templates use the same syntax as 'inetwork subscribe'.`,
	Example: `  # Watch readings from the "weather" publisher at ws://127.0.0.1:8080/ws
  inetwork tap weather --template 'reading:celsius=double'

  # Watch everything a chat server broadcasts
  inetwork tap chat --server --listen :8081`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTap,
}

func init() {
	addTargetFlags(tapCmd)
	tapCmd.Flags().StringVar(&tapListen, "listen", "", "WebSocket listen address (default: tap.addr from config)")
	tapCmd.Flags().StringVar(&tapPath, "path", "/ws", "WebSocket endpoint path")
	tapCmd.Flags().StringArrayVar(&tapTemplates, "template", nil, "Template to register with the publisher (repeatable)")
	tapCmd.Flags().BoolVar(&tapServer, "server", false, "Connect to a plain server instead of a publisher")
	tapCmd.Flags().BoolVar(&tapPrint, "print", false, "Also print received messages")
	rootCmd.AddCommand(tapCmd)
}

// tapSource is the connection the monitor watches
type tapSource interface {
	Start(ctx context.Context) error
	Stop()
}

func runTap(cmd *cobra.Command, args []string) error {
	if targetAddr == "" && len(args) == 0 {
		return fmt.Errorf("give a publisher name or --to host:port")
	}

	listen := settings.Tap.Addr
	if cmd.Flags().Changed("listen") {
		listen = tapListen
	}
	monitor := tap.NewMonitor(tap.Config{Addr: listen, Path: tapPath})

	ctx, stop := signalContext()
	defer stop()

	cfg := tcpConfig(cmd)
	source, target, err := openTapSource(ctx, cfg, args, monitor)
	if err != nil {
		return err
	}

	if err := monitor.Start(); err != nil {
		return err
	}
	if err := source.Start(ctx); err != nil {
		_ = monitor.Stop(context.Background())
		return fmt.Errorf("failed to connect: %w", err)
	}

	h := ui.NewHeader("Tap", "inetwork tap").
		Add("Source", target).
		Add("WebSocket", "ws://"+monitor.Addr()+tapPath)
	if !tapServer {
		h.Add("Templates", strings.Join(tapTemplates, "; "))
	}
	printHeader(h)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		source.Stop()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return monitor.Stop(shutdown)
	})
	return g.Wait()
}

func openTapSource(ctx context.Context, cfg tcp.Config, args []string, monitor *tap.Monitor) (tapSource, string, error) {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	if tapServer {
		conn, err := resolveConnection(ctx, cfg, name)
		if err != nil {
			return nil, "", err
		}
		monitor.WatchConnection(conn)
		if tapPrint {
			conn.OnMessage(func(_ *tcp.Connection, msg *wire.Message) { printMessage(msg) })
		}
		return conn, conn.RemoteAddr(), nil
	}

	templates, err := parseTemplates(tapTemplates)
	if err != nil {
		return nil, "", err
	}
	sub, err := resolveSubscription(ctx, cfg, args)
	if err != nil {
		return nil, "", err
	}
	for _, t := range templates {
		if err := sub.RegisterTemplate(t, nil); err != nil {
			return nil, "", err
		}
	}
	monitor.WatchSubscription(sub)
	if tapPrint {
		sub.OnMessage(func(_ *pubsub.Subscription, msg *wire.Message) { printMessage(msg) })
	}
	return sub, sub.Connection().RemoteAddr(), nil
}
