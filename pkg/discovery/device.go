package discovery

import (
	"fmt"
	"net"
	"strings"
)

// TXT record keys advertised on _companion-link._tcp.
const (
	// TXTKeyDeviceID is the stable device identifier (a MAC-like string).
	TXTKeyDeviceID = "deviceid"

	// TXTKeyModel is the device model key ("AppleTV6,2", ...).
	TXTKeyModel = "rpmd"

	// TXTKeyName is the advertised friendly name.
	TXTKeyName = "rpnm"

	// TXTKeyFlags is the companion flags bitmap.
	TXTKeyFlags = "rpfl"
)

// appleTVModelPrefix identifies Apple TV hardware in the model string.
const appleTVModelPrefix = "AppleTV"

// Device describes one discovered Apple TV. The record is immutable after
// discovery; the core only uses it as a connection handle.
type Device struct {
	// Identifier is the stable identity: the deviceid TXT value, or a
	// name@address:port composite when the record lacks one.
	Identifier string

	// Name is the display name.
	Name string

	// Address is the preferred IP address.
	Address net.IP

	// Port is the Companion TCP port.
	Port int

	// Model is the hardware model string, if advertised.
	Model string

	// Properties holds the raw TXT record key-value pairs.
	Properties map[string]string
}

// String returns a short human-readable description.
func (d *Device) String() string {
	name := d.Name
	if name == "" {
		name = d.Identifier
	}
	return fmt.Sprintf("%s (%s:%d)", name, d.Address, d.Port)
}

// IsAppleTV reports whether the advertised model identifies Apple TV
// hardware. The flags bitmap is not consulted.
func (d *Device) IsAppleTV() bool {
	return strings.HasPrefix(d.Model, appleTVModelPrefix)
}

// newDevice builds a Device from a resolved service entry.
func newDevice(name string, address net.IP, port int, txt map[string]string) *Device {
	d := &Device{
		Name:       name,
		Address:    address,
		Port:       port,
		Model:      txt[TXTKeyModel],
		Properties: txt,
	}
	if friendly, ok := txt[TXTKeyName]; ok {
		d.Name = friendly
	}

	if id, ok := txt[TXTKeyDeviceID]; ok && id != "" {
		d.Identifier = id
	} else {
		d.Identifier = fmt.Sprintf("%s@%s:%d", d.Name, address, port)
	}
	return d
}
