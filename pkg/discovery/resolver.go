package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// Server is an LWM2M server found via DNS-SD.
type Server struct {
	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// HostName is the target host name.
	HostName string

	// Port is the service port.
	Port int

	// IPs contains the resolved IP addresses, sorted by preference.
	IPs []net.IP

	// Role is the announced server role.
	Role Role

	// Version is the announced LWM2M version, if any.
	Version string

	// Text contains the raw TXT record key-value pairs.
	Text map[string]string
}

// PreferredIP returns the most preferred IP address, or nil.
func (s *Server) PreferredIP() net.IP {
	if len(s.IPs) > 0 {
		return s.IPs[0]
	}
	return nil
}

// Host returns the address to dial: the preferred IP, or the host name
// when no address was resolved.
func (s *Server) Host() string {
	if ip := s.PreferredIP(); ip != nil {
		return ip.String()
	}
	return strings.TrimSuffix(s.HostName, ".")
}

// URI returns the coaps:// URI of the server.
func (s *Server) URI() string {
	return "coaps://" + net.JoinHostPort(s.Host(), strconv.Itoa(s.Port))
}

// MDNSResolver is the interface for mDNS service resolution.
// This allows for dependency injection in tests.
//
// Browse and Lookup block until ctx is done or no further entries will be
// delivered. They never close entries.
type MDNSResolver interface {
	// Browse browses for services of the given type.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

	// Lookup looks up a specific service instance.
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
// A zeroconf.Resolver shuts down its sockets when its query ends, so each
// query gets a fresh one.
type zeroconfResolver struct{}

func (zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return forward(ctx, entries, func(r *zeroconf.Resolver, ch chan *zeroconf.ServiceEntry) error {
		return r.Browse(ctx, service, domain, ch)
	})
}

func (zeroconfResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return forward(ctx, entries, func(r *zeroconf.Resolver, ch chan *zeroconf.ServiceEntry) error {
		return r.Lookup(ctx, instance, service, domain, ch)
	})
}

// forward starts a zeroconf query and copies its entries to out until the
// query closes its channel or ctx is done.
func forward(ctx context.Context, out chan<- *zeroconf.ServiceEntry, start func(*zeroconf.Resolver, chan *zeroconf.ServiceEntry) error) error {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}
	in := make(chan *zeroconf.ServiceEntry)
	if err := start(r, in); err != nil {
		return err
	}
	for {
		select {
		case entry, ok := <-in:
			if !ok {
				return nil
			}
			select {
			case out <- entry:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Config holds configuration for the Resolver.
type Config struct {
	// MDNSResolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// Domain is the browse domain. Default: DefaultDomain.
	Domain string

	// BrowseTimeout is the timeout for browse operations.
	// If zero, DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// LookupTimeout is the timeout for lookup operations.
	// If zero, DefaultLookupTimeout is used.
	LookupTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Resolver discovers LWM2M servers via DNS-SD.
type Resolver struct {
	config   Config
	resolver MDNSResolver
	log      logging.LeveledLogger
}

// NewResolver creates a new Resolver with the given configuration.
func NewResolver(config Config) (*Resolver, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		resolver = zeroconfResolver{}
	}
	if config.Domain == "" {
		config.Domain = DefaultDomain
	}
	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}

	r := &Resolver{config: config, resolver: resolver}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}
	return r, nil
}

// Browse discovers announced servers. The returned channel receives
// servers until the context is cancelled or the browse timeout expires.
// Entries with an invalid role are skipped.
func (r *Resolver) Browse(ctx context.Context) <-chan Server {
	results := make(chan Server)
	entries := make(chan *zeroconf.ServiceEntry)

	ctx, cancel := context.WithTimeout(ctx, r.config.BrowseTimeout)

	go func() {
		defer close(entries)
		err := r.resolver.Browse(ctx, ServiceCoAPS, r.config.Domain, entries)
		if err != nil && ctx.Err() == nil && r.log != nil {
			r.log.Warnf("browse %s: %v", ServiceCoAPS, err)
		}
	}()

	go func() {
		defer cancel()
		defer close(results)
		for entry := range entries {
			srv, err := entryToServer(entry)
			if err != nil {
				if r.log != nil {
					r.log.Debugf("skipping %q: %v", entry.Instance, err)
				}
				continue
			}
			select {
			case results <- srv:
			case <-ctx.Done():
				return
			}
		}
	}()
	return results
}

// Lookup resolves a server instance by name.
func (r *Resolver) Lookup(ctx context.Context, instanceName string) (*Server, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.LookupTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		defer close(entries)
		r.resolver.Lookup(ctx, instanceName, ServiceCoAPS, r.config.Domain, entries)
	}()

	select {
	case entry, ok := <-entries:
		if !ok || entry == nil {
			return nil, ErrServiceNotFound
		}
		srv, err := entryToServer(entry)
		if err != nil {
			return nil, err
		}
		return &srv, nil
	case <-ctx.Done():
		return nil, ctxError(ctx)
	}
}

// LookupServer returns the first announced server with the given role.
func (r *Resolver) LookupServer(ctx context.Context, role Role) (*Server, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for srv := range r.Browse(ctx) {
		if srv.Role.Matches(role) {
			if r.log != nil {
				r.log.Infof("found %s server %q at %s", role, srv.InstanceName, srv.URI())
			}
			return &srv, nil
		}
	}
	if ctx.Err() != nil {
		return nil, ctxError(ctx)
	}
	return nil, ErrServiceNotFound
}

func ctxError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

// entryToServer converts a zeroconf.ServiceEntry to a Server.
func entryToServer(entry *zeroconf.ServiceEntry) (Server, error) {
	txt, err := ParseServerTXT(entry.Text)
	if err != nil {
		return Server{}, err
	}

	var ips []net.IP
	ips = append(ips, entry.AddrIPv6...)
	ips = append(ips, entry.AddrIPv4...)
	if len(ips) == 0 && entry.HostName == "" {
		return Server{}, ErrNoAddress
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}
	return Server{
		InstanceName: entry.Instance,
		HostName:     entry.HostName,
		Port:         port,
		IPs:          SortIPsByPreference(ips),
		Role:         txt.Role,
		Version:      txt.Version,
		Text:         ParseTXT(entry.Text),
	}, nil
}
