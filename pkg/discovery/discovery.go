// Package discovery advertises the gateway on the local network over mDNS
// and lets client tooling find running servers without configuration.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

const (
	// ServiceType is the mDNS service type the gateway registers under.
	ServiceType = "_zwave-js-server._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultTTL is the DNS record TTL.
	DefaultTTL = 120 * time.Second
)

// Info is the service data placed in the TXT record.
type Info struct {
	// HomeID of the fronted Z-Wave network.
	HomeID uint32

	// ServerVersion of the advertising gateway.
	ServerVersion string

	// MinSchema and MaxSchema bound the supported API schema range, so
	// clients can skip incompatible servers before connecting.
	MinSchema int
	MaxSchema int
}

// encodeTXT renders the TXT key/value pairs.
func encodeTXT(info Info) []string {
	return []string{
		"homeId=" + strconv.FormatUint(uint64(info.HomeID), 10),
		"version=" + info.ServerVersion,
		"minSchema=" + strconv.Itoa(info.MinSchema),
		"maxSchema=" + strconv.Itoa(info.MaxSchema),
	}
}

// decodeTXT parses the TXT key/value pairs. Unknown keys are ignored.
func decodeTXT(txt []string) Info {
	var info Info
	for _, kv := range txt {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch key {
		case "homeId":
			if v, err := strconv.ParseUint(value, 10, 32); err == nil {
				info.HomeID = uint32(v)
			}
		case "version":
			info.ServerVersion = value
		case "minSchema":
			if v, err := strconv.Atoi(value); err == nil {
				info.MinSchema = v
			}
		case "maxSchema":
			if v, err := strconv.Atoi(value); err == nil {
				info.MaxSchema = v
			}
		}
	}
	return info
}

// Advertiser keeps one mDNS registration alive for a running gateway.
type Advertiser struct {
	// Interface restricts advertising to one network interface. Empty
	// means all interfaces.
	Interface string

	// TTL is the DNS record TTL. Zero selects DefaultTTL.
	TTL time.Duration

	mu     sync.Mutex
	server *zeroconf.Server
}

// Advertise registers the service. A prior registration is replaced.
func (a *Advertiser) Advertise(instance string, port int, info Info) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	ttl := a.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	opts := []zeroconf.ServerOption{zeroconf.TTL(uint32(ttl.Seconds()))}

	var ifaces []net.Interface
	if a.Interface != "" {
		iface, err := net.InterfaceByName(a.Interface)
		if err != nil {
			return fmt.Errorf("resolving interface %q: %w", a.Interface, err)
		}
		ifaces = []net.Interface{*iface}
	}

	server, err := zeroconf.Register(instance, ServiceType, Domain, port, encodeTXT(info), ifaces, opts...)
	if err != nil {
		return fmt.Errorf("registering mdns service: %w", err)
	}
	a.server = server
	return nil
}

// Stop withdraws the registration. Idempotent.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Server is one gateway found on the local network.
type Server struct {
	Instance  string
	Host      string
	Port      int
	Addresses []string
	Info      Info
}

// Addr returns a dialable host:port, preferring a resolved address.
func (s *Server) Addr() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// Browse streams gateways as they are found, until ctx is canceled. The
// returned channel closes when browsing stops.
func Browse(ctx context.Context) (<-chan *Server, error) {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	out := make(chan *Server)

	go func() {
		defer close(out)
		seen := make(map[string]bool)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if seen[entry.Instance] {
					continue
				}
				seen[entry.Instance] = true
				select {
				case out <- entryToServer(entry):
				case <-ctx.Done():
					return
				}
			case <-removed:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed)
	}()

	return out, nil
}

// FindFirst returns the first gateway found, or ctx's error.
func FindFirst(ctx context.Context) (*Server, error) {
	results, err := Browse(ctx)
	if err != nil {
		return nil, err
	}
	select {
	case srv, ok := <-results:
		if !ok {
			return nil, context.Canceled
		}
		return srv, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func entryToServer(entry *zeroconf.ServiceEntry) *Server {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return &Server{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      entry.Port,
		Addresses: addrs,
		Info:      decodeTXT(entry.Text),
	}
}
