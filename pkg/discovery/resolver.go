// Package discovery finds Apple TVs on the local network via DNS-SD.
//
// Apple TVs advertise the Companion link on _companion-link._tcp. The
// _airplay._tcp service is consulted only as a fallback to resolve display
// names; Companion is the service the session connects to.
package discovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// Service types consumed by the resolver.
const (
	// ServiceCompanion is the Companion link service.
	ServiceCompanion = "_companion-link._tcp"

	// ServiceAirPlay is used for fallback name resolution only.
	ServiceAirPlay = "_airplay._tcp"

	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
)

// DefaultBrowseTimeout is the default timeout for browse operations.
const DefaultBrowseTimeout = 10 * time.Second

// Errors.
var (
	// ErrNoDevices is returned by ScanFirst when the browse window closes
	// without a match.
	ErrNoDevices = errors.New("discovery: no devices found")
)

// MDNSResolver is the interface to the underlying mDNS implementation.
// This allows for dependency injection in tests.
type MDNSResolver interface {
	// Browse browses for services of the given type.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// BrowseTimeout is the timeout for browse operations. If zero,
	// DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// AllDevices disables the Apple TV filter and reports every
	// Companion advertiser.
	AllDevices bool

	// LoggerFactory is the factory for creating loggers. If nil, logging
	// is disabled.
	LoggerFactory logging.LoggerFactory
}

// Resolver discovers Apple TVs via DNS-SD.
type Resolver struct {
	config   ResolverConfig
	resolver MDNSResolver
	log      logging.LeveledLogger
}

// NewResolver creates a Resolver with the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		resolver = zr
	}

	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}

	r := &Resolver{
		config:   config,
		resolver: resolver,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}
	return r, nil
}

// Scan browses for Apple TVs until the context is cancelled or the browse
// timeout expires. Results stream on the returned channel, which is closed
// when the browse window ends.
func (r *Resolver) Scan(ctx context.Context) (<-chan *Device, error) {
	results := make(chan *Device)
	entries := make(chan *zeroconf.ServiceEntry)

	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, r.config.BrowseTimeout)
	}

	go func() {
		defer close(results)
		defer cancel()

		go func() {
			defer close(entries)
			if err := r.resolver.Browse(ctx, ServiceCompanion, DefaultDomain, entries); err != nil && r.log != nil {
				r.log.Warnf("browse failed: %v", err)
			}
		}()

		seen := make(map[string]bool)
		for entry := range entries {
			device := entryToDevice(entry)
			if device == nil {
				continue
			}
			if !r.config.AllDevices && !device.IsAppleTV() {
				if r.log != nil {
					r.log.Debugf("skipping non-Apple-TV advertiser %s", device.Identifier)
				}
				continue
			}
			if seen[device.Identifier] {
				continue
			}
			seen[device.Identifier] = true

			if device.Name == "" {
				device.Name = r.lookupAirPlayName(ctx, device.Identifier)
			}

			if r.log != nil {
				r.log.Infof("found %s", device)
			}
			select {
			case results <- device:
			case <-ctx.Done():
				return
			}
		}
	}()

	return results, nil
}

// ScanFirst returns the first device whose identifier matches, or the
// first device at all when identifier is empty. Returns ErrNoDevices when
// the browse window closes without a match.
func (r *Resolver) ScanFirst(ctx context.Context, identifier string) (*Device, error) {
	devices, err := r.Scan(ctx)
	if err != nil {
		return nil, err
	}
	for device := range devices {
		if identifier == "" || device.Identifier == identifier {
			return device, nil
		}
	}
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, ctx.Err()
	}
	return nil, ErrNoDevices
}

// lookupAirPlayName resolves a display name from the device's
// _airplay._tcp advertisement. Fallback only; some Companion records omit
// the friendly name.
func (r *Resolver) lookupAirPlayName(ctx context.Context, identifier string) string {
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		defer close(entries)
		if err := r.resolver.Browse(ctx, ServiceAirPlay, DefaultDomain, entries); err != nil && r.log != nil {
			r.log.Debugf("airplay lookup failed: %v", err)
		}
	}()

	for entry := range entries {
		txt := ParseTXT(entry.Text)
		if txt[TXTKeyDeviceID] == identifier && entry.Instance != "" {
			return entry.Instance
		}
	}
	return ""
}

// entryToDevice converts a zeroconf entry, preferring IPv4 addresses the
// way the Companion clients do.
func entryToDevice(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil {
		return nil
	}

	var addr net.IP
	if len(entry.AddrIPv4) > 0 {
		addr = entry.AddrIPv4[0]
	} else if len(entry.AddrIPv6) > 0 {
		addr = entry.AddrIPv6[0]
	} else {
		return nil
	}

	return newDevice(entry.Instance, addr, entry.Port, ParseTXT(entry.Text))
}

// ParseTXT converts raw TXT strings to a key-value map. Keys are
// lower-cased; a record without '=' maps to an empty value.
func ParseTXT(txt []string) map[string]string {
	m := make(map[string]string, len(txt))
	for _, kv := range txt {
		if kv == "" {
			continue
		}
		key, value, _ := strings.Cut(kv, "=")
		m[strings.ToLower(key)] = value
	}
	return m
}
