package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceTypeTcp is the mDNS service type for transport servers
	ServiceTypeTcp = "_inetwork-tcp._tcp"

	// ServiceTypeHeap is the mDNS service type for publishers
	ServiceTypeHeap = "_inetwork-heap._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultBrowseTimeout is the default timeout for mDNS browsing
	DefaultBrowseTimeout = 3 * time.Second
)

// serviceTypeFor maps server types onto mDNS service types
func serviceTypeFor(t ServerType) []string {
	switch {
	case t == All:
		return []string{ServiceTypeTcp, ServiceTypeHeap}
	case t&Heap != 0 && t&Tcp != 0:
		return []string{ServiceTypeTcp, ServiceTypeHeap}
	case t&Heap != 0:
		return []string{ServiceTypeHeap}
	default:
		return []string{ServiceTypeTcp}
	}
}

// Advertiser announces one endpoint over mDNS
type Advertiser struct {
	servers []*zeroconf.Server
}

// NewAdvertiser registers self under its service type. The instance name is
// the endpoint name, or "inetwork-<port>" when unnamed.
func NewAdvertiser(self Endpoint) (*Advertiser, error) {
	instance := self.Name
	if instance == "" {
		instance = fmt.Sprintf("inetwork-%d", self.Port)
	}
	txt := []string{
		"name=" + self.Name,
		"type=" + strconv.Itoa(int(self.Type)),
		"ip=" + self.IP,
	}

	adv := &Advertiser{}
	for _, service := range serviceTypeFor(self.Type) {
		server, err := zeroconf.Register(instance, service, ServiceDomain, self.Port, txt, nil)
		if err != nil {
			adv.Shutdown()
			return nil, fmt.Errorf("failed to register mDNS service %s: %w", service, err)
		}
		adv.servers = append(adv.servers, server)
	}
	return adv, nil
}

// Shutdown withdraws the advertisement
func (a *Advertiser) Shutdown() {
	for _, s := range a.servers {
		s.Shutdown()
	}
	a.servers = nil
}

// Browser handles mDNS discovery of advertised endpoints
type Browser struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration
}

// NewBrowser creates a new mDNS browser with default settings
func NewBrowser() *Browser {
	return &Browser{
		Timeout: DefaultBrowseTimeout,
	}
}

// Browse lists endpoints of type t advertised over mDNS until the timeout
// or ctx ends
func (b *Browser) Browse(ctx context.Context, t ServerType) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make([]Result, 0)
		seen    = make(map[string]bool)
		wg      sync.WaitGroup
	)

	for _, service := range serviceTypeFor(t) {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
		}

		entries := make(chan *zeroconf.ServiceEntry)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case entry, ok := <-entries:
					if !ok {
						return
					}
					res := parseServiceEntry(entry)
					if res == nil || !res.Type.Matches(t) {
						continue
					}
					mu.Lock()
					if !seen[res.Address()] {
						seen[res.Address()] = true
						results = append(results, *res)
					}
					mu.Unlock()
				case <-ctx.Done():
					return
				}
			}
		}()

		if err := resolver.Browse(ctx, service, ServiceDomain, entries); err != nil {
			return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
		}
	}

	<-ctx.Done()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return results, nil
}

// parseServiceEntry converts a zeroconf service entry to a Result.
// Returns nil if the entry carries no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Result {
	if entry == nil || entry.Port <= 0 {
		return nil
	}

	// Parse TXT records into metadata
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	// Prefer the advertised IPv4, then the record addresses
	ip := metadata["ip"]
	if ip == "" {
		for _, addr := range entry.AddrIPv4 {
			ip = addr.String()
			break
		}
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	serverType := Tcp
	if strings.HasPrefix(entry.Service, ServiceTypeHeap) {
		serverType = Heap
	}
	if v, err := strconv.Atoi(metadata["type"]); err == nil && v > 0 {
		serverType = ServerType(v)
	}

	name := metadata["name"]
	if name == "" && !strings.HasPrefix(entry.Instance, "inetwork-") {
		name = entry.Instance
	}

	return &Result{
		Name:         name,
		IP:           ip,
		Port:         entry.Port,
		Type:         serverType,
		Source:       "mdns",
		DiscoveredAt: time.Now(),
	}
}

// Browse is a convenience function to browse with a custom timeout
func Browse(ctx context.Context, t ServerType, timeout time.Duration) ([]Result, error) {
	browser := NewBrowser()
	if timeout > 0 {
		browser.Timeout = timeout
	}
	return browser.Browse(ctx, t)
}
