// Package atv is the host-facing API: discover Apple TVs, connect, pair,
// verify and drive them. It wires discovery, transport, pairing and the
// Companion session together around an injected credentials store.
package atv

import (
	"context"
	"errors"
	"time"

	"github.com/pion/logging"
	"github.com/reekystive/cuepad/pkg/companion"
	"github.com/reekystive/cuepad/pkg/credentials"
	"github.com/reekystive/cuepad/pkg/discovery"
	"github.com/reekystive/cuepad/pkg/transport"
)

// Errors.
var (
	// ErrNotPaired is returned by Verify when no credentials exist for
	// the device.
	ErrNotPaired = errors.New("atv: device not paired")
)

// Config configures a Client.
type Config struct {
	// Store persists pairing credentials. If nil, an in-memory store is
	// used and pairings do not survive the process.
	Store credentials.Store

	// Timeout bounds connection establishment and protocol replies.
	// Zero means the companion default.
	Timeout time.Duration

	// AllDevices disables the Apple TV discovery filter.
	AllDevices bool

	// PlaintextData disables post-verify data-frame encryption. Interop
	// escape hatch only.
	PlaintextData bool

	// LoggerFactory is the factory for creating loggers. If nil, logging
	// is disabled.
	LoggerFactory logging.LoggerFactory
}

// Client discovers and drives Apple TVs. Sessions against multiple
// devices may coexist; each Connect returns an independent session.
type Client struct {
	config   Config
	store    credentials.Store
	resolver *discovery.Resolver
	log      logging.LeveledLogger
}

// NewClient creates a Client.
func NewClient(config Config) (*Client, error) {
	store := config.Store
	if store == nil {
		store = credentials.NewMemoryStore()
	}

	resolver, err := discovery.NewResolver(discovery.ResolverConfig{
		AllDevices:    config.AllDevices,
		BrowseTimeout: config.Timeout,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:   config,
		store:    store,
		resolver: resolver,
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("atv")
	}
	return c, nil
}

// Scan browses the local network and returns the Apple TVs found within
// the browse window.
func (c *Client) Scan(ctx context.Context) ([]*discovery.Device, error) {
	ch, err := c.resolver.Scan(ctx)
	if err != nil {
		return nil, err
	}

	var devices []*discovery.Device
	for d := range ch {
		devices = append(devices, d)
	}
	return devices, nil
}

// Connect dials the device's Companion port and returns an unauthenticated
// session. Run Pair (first time) or Verify next.
func (c *Client) Connect(device *discovery.Device) (*companion.Session, error) {
	dial := func() (transport.Conn, error) {
		return transport.Dial(device.Address.String(), device.Port, transport.TCPConfig{
			Timeout:       c.config.Timeout,
			LoggerFactory: c.config.LoggerFactory,
		})
	}

	conn, err := dial()
	if err != nil {
		return nil, err
	}
	if c.log != nil {
		c.log.Infof("connected to %s", device)
	}

	return companion.NewSession(conn, companion.Config{
		Timeout:       c.config.Timeout,
		Dialer:        dial,
		PlaintextData: c.config.PlaintextData,
		LoggerFactory: c.config.LoggerFactory,
	}), nil
}

// Pair runs pair-setup with the user-supplied PIN, binds the resulting
// record to the device and persists it atomically.
func (c *Client) Pair(ctx context.Context, session *companion.Session, device *discovery.Device, pin string) (*credentials.Credentials, error) {
	creds, err := session.Pair(ctx, pin)
	if err != nil {
		return nil, err
	}

	creds.Identifier = device.Identifier
	if err := c.store.Put(device.Identifier, creds); err != nil {
		return nil, err
	}
	if c.log != nil {
		c.log.Infof("paired with %s", device)
	}
	return creds, nil
}

// Verify authenticates the session from stored credentials and establishes
// the encrypted channel.
func (c *Client) Verify(ctx context.Context, session *companion.Session, device *discovery.Device) error {
	creds, err := c.store.Get(device.Identifier)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return ErrNotPaired
		}
		return err
	}
	return session.Verify(ctx, creds)
}

// SendKey performs a button gesture on an established session.
func (c *Client) SendKey(ctx context.Context, session *companion.Session, key companion.Key, action companion.KeyAction) error {
	return session.SendKey(ctx, key, action)
}

// SendMedia sends a media-control command.
func (c *Client) SendMedia(ctx context.Context, session *companion.Session, cmd companion.MediaCommand, params map[string]any) error {
	return session.SendMedia(ctx, cmd, params)
}

// GetText returns the focused text field's content.
func (c *Client) GetText(ctx context.Context, session *companion.Session) (string, error) {
	return session.GetText(ctx)
}

// SetText edits the focused text field.
func (c *Client) SetText(ctx context.Context, session *companion.Session, text string, clear bool) error {
	return session.SetText(ctx, text, clear)
}

// ObserveEvents registers an event callback on the session.
func (c *Client) ObserveEvents(session *companion.Session, fn func(companion.Event)) *companion.Subscription {
	return session.Observe(fn)
}

// Disconnect closes the session.
func (c *Client) Disconnect(session *companion.Session) error {
	return session.Close()
}

// Unpair removes the stored credentials for a device.
func (c *Client) Unpair(device *discovery.Device) error {
	return c.store.Delete(device.Identifier)
}
