package atv

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/reekystive/cuepad/pkg/companion"
	"github.com/reekystive/cuepad/pkg/credentials"
	"github.com/reekystive/cuepad/pkg/discovery"
	"github.com/reekystive/cuepad/pkg/transport"
)

func testDevice() *discovery.Device {
	return &discovery.Device{
		Identifier: "AA:BB:CC:DD:EE:FF",
		Name:       "Living Room",
		Address:    net.IPv4(192, 168, 1, 20),
		Port:       49153,
		Model:      "AppleTV6,2",
	}
}

func pipeSession(t *testing.T) *companion.Session {
	t.Helper()
	deviceSide, controllerSide := transport.Pipe()
	t.Cleanup(func() { deviceSide.Close() })
	s := companion.NewSession(controllerSide, companion.Config{Timeout: time.Second})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Config{})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.store == nil {
		t.Error("no default store installed")
	}
}

func TestVerify_NotPaired(t *testing.T) {
	c, err := NewClient(Config{Store: credentials.NewMemoryStore()})
	if err != nil {
		t.Fatal(err)
	}

	session := pipeSession(t)
	err = c.Verify(context.Background(), session, testDevice())
	if !errors.Is(err, ErrNotPaired) {
		t.Errorf("got %v, want ErrNotPaired", err)
	}
}

func TestUnpair(t *testing.T) {
	store := credentials.NewMemoryStore()
	c, err := NewClient(Config{Store: store})
	if err != nil {
		t.Fatal(err)
	}

	device := testDevice()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	serverPub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	creds := &credentials.Credentials{
		Identifier: device.Identifier,
		ClientID:   "client-id",
		ClientLTSK: priv,
		ClientLTPK: pub,
		ServerID:   device.Identifier,
		ServerLTPK: serverPub,
	}
	if err := store.Put(device.Identifier, creds); err != nil {
		t.Fatal(err)
	}

	if err := c.Unpair(device); err != nil {
		t.Fatalf("Unpair failed: %v", err)
	}
	if _, err := store.Get(device.Identifier); !errors.Is(err, credentials.ErrNotFound) {
		t.Errorf("credentials survive Unpair: %v", err)
	}
}

func TestCommandDelegation_RequiresEstablished(t *testing.T) {
	c, err := NewClient(Config{})
	if err != nil {
		t.Fatal(err)
	}

	session := pipeSession(t)
	ctx := context.Background()

	if err := c.SendKey(ctx, session, companion.KeySelect, companion.KeyActionTap); !errors.Is(err, companion.ErrNotConnected) {
		t.Errorf("SendKey: got %v", err)
	}
	if err := c.SendMedia(ctx, session, companion.MediaPlay, nil); !errors.Is(err, companion.ErrNotConnected) {
		t.Errorf("SendMedia: got %v", err)
	}
	if _, err := c.GetText(ctx, session); !errors.Is(err, companion.ErrNotFocused) {
		t.Errorf("GetText: got %v", err)
	}
}
