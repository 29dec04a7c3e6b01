package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/grouplab/inetwork/internal/ui"
	"github.com/grouplab/inetwork/pkg/pubsub"
	"github.com/grouplab/inetwork/pkg/wire"
)

var (
	publishEvery   time.Duration
	publishMessage string
	publishFields  []string
	publishQuiet   bool
)

var publishCmd = &cobra.Command{
	Use:   "publish <name>",
	Short: "Run a publisher",
	Long: `Run a named publisher. Subscriptions register templates with it, and
every message a subscription sends is forwarded to the other subscriptions
whose templates match it.

With --every the publisher also publishes a message of its own on a fixed
interval, which is handy for trying out subscriptions.`,
	Example: `  # Publisher found by discovery as "weather"
  inetwork publish weather

  # Publish a reading every second
  inetwork publish weather --every 1s --message reading --field celsius=double:21.5`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func init() {
	addListenFlags(publishCmd)
	publishCmd.Flags().DurationVar(&publishEvery, "every", 0, "Publish --message on this interval (0 = never)")
	publishCmd.Flags().StringVar(&publishMessage, "message", "tick", "Name of the periodic message")
	publishCmd.Flags().StringArrayVar(&publishFields, "field", nil, "Field of the periodic message as name=type:value (repeatable)")
	publishCmd.Flags().BoolVar(&publishQuiet, "quiet", false, "Do not print forwarded messages")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	var periodic *wire.Message
	if publishEvery > 0 {
		msg, err := buildMessage(publishMessage, false, publishFields)
		if err != nil {
			return err
		}
		periodic = msg
	}

	p, err := pubsub.NewPublisher(args[0], tcpConfig(cmd))
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	p.OnSubscription(func(s *pubsub.Subscription, ev pubsub.SubscriptionEvent) {
		printEvent("%s %s", s.Connection().RemoteAddr(), ev)
		if ev != pubsub.Subscribed || publishQuiet {
			return
		}
		show := func(_ *pubsub.Subscription, msg *wire.Message) { printMessage(msg) }
		s.OnMessage(show)
		s.OnInternalMessage(show)
	})

	if err := p.Start(); err != nil {
		return fmt.Errorf("failed to start publisher: %w", err)
	}
	defer p.Stop()

	h := ui.NewHeader("Publisher", "inetwork publish "+args[0]).
		Add("Address", p.Addr()).
		Add("Port", strconv.Itoa(p.Port())).
		Add("Discoverable", discoverableText(p.IsDiscoverable()))
	if periodic != nil {
		h.Add("Publishing", fmt.Sprintf("%s every %s", periodic.Name(), publishEvery))
	}
	printHeader(h)

	ctx, stop := signalContext()
	defer stop()

	if periodic == nil {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(publishEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n := p.Publish(periodic)
			if !publishQuiet {
				printEvent("published %s to %d subscription(s)", periodic.Name(), n)
			}
		}
	}
}
