package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/grouplab/inetwork/internal/ui"
	"github.com/grouplab/inetwork/pkg/pubsub"
	"github.com/grouplab/inetwork/pkg/tcp"
	"github.com/grouplab/inetwork/pkg/wire"
)

var subscribeTemplates []string

var subscribeCmd = &cobra.Command{
	Use:   "subscribe [publisher]",
	Short: "Subscribe to a publisher and print matching messages",
	Long: `Connect to a publisher, register templates and print every message
forwarded to this subscription.

A template is "Name" or "Name:field=type,field=type". A message is delivered
when its name equals the template name and it carries every listed field
with a compatible type. Field types are bool, byte, double, float, int,
long, short, string, binary, null or any.

The publisher is found by discovery unless --to is given.`,
	Example: `  # Readings that carry a celsius value
  inetwork subscribe weather --template 'reading:celsius=double'

  # Two templates on a publisher at a known address
  inetwork subscribe --to 10.0.0.5:10001 --template alert --template 'news:title=string'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSubscribe,
}

func init() {
	addTargetFlags(subscribeCmd)
	subscribeCmd.Flags().StringArrayVar(&subscribeTemplates, "template", nil, "Template to register (repeatable)")
	rootCmd.AddCommand(subscribeCmd)
}

// resolveSubscription returns an unstarted subscription for --to or a
// discovered publisher
func resolveSubscription(ctx context.Context, cfg tcp.Config, args []string) (*pubsub.Subscription, error) {
	if targetAddr != "" {
		host, port, err := splitTarget(targetAddr)
		if err != nil {
			return nil, err
		}
		return pubsub.NewSubscription(host, port, cfg), nil
	}

	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	sub := pubsub.Discover(ctx, cfg, name)
	if sub == nil {
		return nil, notFound("publisher", name)
	}
	return sub, nil
}

func notFound(kind, name string) error {
	if name == "" {
		return fmt.Errorf("no %s found (use --to to connect directly)", kind)
	}
	return fmt.Errorf("no %s named %q found (use --to to connect directly)", kind, name)
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	templates, err := parseTemplates(subscribeTemplates)
	if err != nil {
		return err
	}
	if targetAddr == "" && len(args) == 0 {
		return fmt.Errorf("give a publisher name or --to host:port")
	}

	ctx, stop := signalContext()
	defer stop()

	sub, err := resolveSubscription(ctx, tcpConfig(cmd), args)
	if err != nil {
		return err
	}

	show := func(_ *pubsub.Subscription, msg *wire.Message) { printMessage(msg) }
	sub.OnMessage(show)
	sub.OnInternalMessage(show)

	done := make(chan struct{})
	var once sync.Once
	sub.OnSubscribed(func(_ *pubsub.Subscription, ev pubsub.SubscriptionEvent) {
		printEvent("%s", ev)
		if ev == pubsub.Unsubscribed {
			once.Do(func() { close(done) })
		}
	})

	names := make([]string, 0, len(templates))
	for _, t := range templates {
		if err := sub.RegisterTemplate(t, nil); err != nil {
			return err
		}
		names = append(names, t.String())
	}

	if err := sub.Start(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer sub.Stop()

	h := ui.NewHeader("Subscription", "inetwork subscribe").
		Add("Publisher", sub.Connection().RemoteAddr())
	if len(names) == 0 {
		h.Add("Templates", "(none; only internal messages arrive)")
	} else {
		h.Add("Templates", strings.Join(names, "; "))
	}
	printHeader(h)

	select {
	case <-ctx.Done():
	case <-done:
		return fmt.Errorf("publisher closed the connection")
	}
	return nil
}
