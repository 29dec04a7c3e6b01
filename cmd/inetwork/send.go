package main

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/grouplab/inetwork/internal/ui"
	"github.com/grouplab/inetwork/pkg/tcp"
	"github.com/grouplab/inetwork/pkg/wire"
)

var (
	sendFields   []string
	sendInternal bool
	sendWait     time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <message> [server]",
	Short: "Send one message to a server",
	Long: `Connect to a server, send one message and print any replies that arrive
within --wait.

Fields are given as name=type:value. Without a type the value is a string;
name=null adds a null field. Binary values are hex.

The server is found by discovery unless --to is given.`,
	Example: `  # Ask the "echo" server to echo a reading
  inetwork send reading echo --field celsius=double:21.5 --field unit=C

  # Internal message to a known address, no waiting for replies
  inetwork send sync --to 127.0.0.1:10001 --internal --wait 0`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

func init() {
	addTargetFlags(sendCmd)
	sendCmd.Flags().StringArrayVar(&sendFields, "field", nil, "Message field as name=type:value (repeatable)")
	sendCmd.Flags().BoolVar(&sendInternal, "internal", false, "Send as an internal message")
	sendCmd.Flags().DurationVar(&sendWait, "wait", time.Second, "How long to print replies before exiting")
	rootCmd.AddCommand(sendCmd)
}

// resolveConnection returns an unstarted connection for --to or a
// discovered server
func resolveConnection(ctx context.Context, cfg tcp.Config, name string) (*tcp.Connection, error) {
	if targetAddr != "" {
		host, port, err := splitTarget(targetAddr)
		if err != nil {
			return nil, err
		}
		return tcp.NewConnection(host, port, cfg), nil
	}
	conn := tcp.Discover(ctx, cfg, name)
	if conn == nil {
		return nil, notFound("server", name)
	}
	return conn, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	msg, err := buildMessage(args[0], sendInternal, sendFields)
	if err != nil {
		return err
	}

	server := ""
	if len(args) > 1 {
		server = args[1]
	}
	if targetAddr == "" && server == "" {
		return fmt.Errorf("give a server name or --to host:port")
	}

	ctx, stop := signalContext()
	defer stop()

	conn, err := resolveConnection(ctx, tcpConfig(cmd), server)
	if err != nil {
		printResult(ui.NewFailureResult("Server not found", err,
			"Check the server runs with discovery enabled",
			"Multicast may be blocked; try --to host:port"))
		return err
	}

	var replies atomic.Int32
	show := func(_ *tcp.Connection, reply *wire.Message) {
		replies.Add(1)
		printMessage(reply)
	}
	conn.OnMessage(show)
	conn.OnInternalMessage(show)

	if err := conn.Start(ctx); err != nil {
		printResult(ui.NewFailureResult("Connect failed", err))
		return err
	}
	defer conn.Stop()

	if err := conn.SendMessage(msg); err != nil {
		printResult(ui.NewFailureResult("Send failed", err))
		return err
	}

	if sendWait > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(sendWait):
		}
	}
	conn.Stop()

	printResult(ui.NewSuccessResult("Message sent",
		ui.Param{Key: "Server", Value: conn.RemoteAddr()},
		ui.Param{Key: "Message", Value: msg.Name()},
		ui.Param{Key: "Fields", Value: strconv.Itoa(msg.Len())},
		ui.Param{Key: "Replies", Value: strconv.Itoa(int(replies.Load()))},
	))
	return nil
}
