package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/grouplab/inetwork/internal/ui"
	"github.com/grouplab/inetwork/pkg/discovery"
)

var (
	discoverType   string
	discoverSingle bool
	discoverMDNS   bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover [name]",
	Short: "List servers and publishers on the local network",
	Long: `Send a multicast lookup and list every server that answers within the
timeout. With a name only servers of that name are listed.

--mdns also browses mDNS for servers advertised with discovery.mdns
enabled; both lookups run at the same time.`,
	Example: `  # Everything on the network
  inetwork discover

  # Publishers only, stop at the first answer
  inetwork discover --type heap --single

  # Look for "echo" over multicast and mDNS for 3 seconds
  inetwork discover echo --mdns --timeout 3s`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverType, "type", "all", "Server type (all, tcp, heap)")
	discoverCmd.Flags().BoolVar(&discoverSingle, "single", false, "Stop at the first answer")
	discoverCmd.Flags().BoolVar(&discoverMDNS, "mdns", false, "Also browse mDNS")
	discoverCmd.Flags().DurationVar(&timeout, "timeout", 0, "Collection window (default: discovery.timeout from config)")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	serverType, err := discovery.ParseServerType(discoverType)
	if err != nil {
		return err
	}

	cfg := settings.DiscoveryConfig()
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	q := discovery.Query{Type: serverType, Mode: discovery.Multiple, Timeout: cfg.Timeout}
	if len(args) > 0 {
		q.Name = args[0]
	}
	if discoverSingle {
		q.Mode = discovery.Single
	}

	ctx, stop := signalContext()
	defer stop()

	var multicast, mdns []discovery.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		multicast = discovery.Discover(gctx, cfg, q)
		return nil
	})
	if discoverMDNS {
		g.Go(func() error {
			found, err := discovery.Browse(gctx, serverType, cfg.Timeout)
			if err != nil {
				return fmt.Errorf("mdns browse failed: %w", err)
			}
			for _, r := range found {
				if q.Name == "" || r.Name == q.Name {
					mdns = append(mdns, r)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		printResult(ui.NewFailureResult("Discovery failed", err))
		return err
	}

	results := mergeResults(multicast, mdns)
	if discoverSingle && len(results) > 1 {
		results = results[:1]
	}

	fmt.Println(ui.RenderResults(results))
	if ui.IsTerminal() {
		fmt.Println()
		fmt.Println(ui.HintStyle.Render(fmt.Sprintf("  %s found, type %s, window %s",
			plural(len(results), "server"), serverType, cfg.Timeout)))
	}
	return nil
}

// mergeResults keeps the multicast answer when both lookups found the same
// address
func mergeResults(primary, extra []discovery.Result) []discovery.Result {
	seen := make(map[string]bool, len(primary)+len(extra))
	out := make([]discovery.Result, 0, len(primary)+len(extra))
	for _, list := range [][]discovery.Result{primary, extra} {
		for _, r := range list {
			if seen[r.Address()] {
				continue
			}
			seen[r.Address()] = true
			out = append(out, r)
		}
	}
	return out
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
