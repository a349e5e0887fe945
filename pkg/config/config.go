package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hiqontrol/hiqnet-go/pkg/transport"
	"github.com/hiqontrol/hiqnet-go/pkg/version"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete node configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Network   NetworkConfig   `yaml:"network"`
	Node      NodeConfig      `yaml:"node"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// DeviceConfig is the identity the node announces.
type DeviceConfig struct {
	Name            string `yaml:"name"`
	ClassName       string `yaml:"class_name"`
	SerialNumber    string `yaml:"serial_number"`
	SoftwareVersion string `yaml:"software_version"`

	// Address is the device address to use. Zero means negotiate one.
	Address uint16 `yaml:"address"`
}

// NetworkConfig controls the sockets.
type NetworkConfig struct {
	// Interface supplies the MAC and IPv4 details for DISCOINFO.
	// Empty picks the first non-loopback interface with an IPv4 address.
	Interface string `yaml:"interface"`

	// ListenHost is the local address to bind. Empty binds all.
	ListenHost string `yaml:"listen_host"`

	Port int `yaml:"port"`

	// Broadcast is the datagram destination for announcements and address
	// requests. A bare IP is sent to the HiQnet port.
	Broadcast string `yaml:"broadcast"`

	// Gateway is the default gateway announced in DISCOINFO. Empty
	// announces 0.0.0.0.
	Gateway string `yaml:"gateway"`

	DHCP           bool          `yaml:"dhcp"`
	MaxMessageSize uint32        `yaml:"max_message_size"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
}

// NodeConfig controls the node runtime.
type NodeConfig struct {
	// KeepAlive is the DISCOINFO announcement period.
	KeepAlive time.Duration `yaml:"keepalive"`

	// ClaimTimeout is how long to wait for ADDRUSED after REQADDR.
	ClaimTimeout time.Duration `yaml:"claim_timeout"`

	// ClaimAttempts bounds how many addresses are tried before giving up.
	ClaimAttempts int `yaml:"claim_attempts"`

	// StatePath is where the claimed address is persisted. Empty disables
	// persistence.
	StatePath string `yaml:"state_path"`
}

// LogConfig controls operational and protocol logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// ProtocolLog is a CBOR capture file. Empty disables capture.
	ProtocolLog string `yaml:"protocol_log"`

	// HexDump adds raw frame bytes to debug logs.
	HexDump bool `yaml:"hex_dump"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP address for /metrics. Empty disables it.
	Listen    string `yaml:"listen"`
	Namespace string `yaml:"namespace"`
}

// DiscoveryConfig controls DNS-SD advertisement.
type DiscoveryConfig struct {
	Advertise bool          `yaml:"advertise"`
	TTL       time.Duration `yaml:"ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "hiqnet-node"
	}
	if len(host) > wire.SerialNumberSize {
		host = host[:wire.SerialNumberSize]
	}
	return Config{
		Device: DeviceConfig{
			Name:            host,
			SoftwareVersion: version.Current,
		},
		Network: NetworkConfig{
			Port:           wire.Port,
			Broadcast:      transport.DefaultBroadcastAddr,
			MaxMessageSize: wire.MaxMessageSize,
			DialTimeout:    transport.DefaultDialTimeout,
		},
		Node: NodeConfig{
			KeepAlive:     time.Duration(wire.DefaultKeepAlive) * time.Millisecond,
			ClaimTimeout:  time.Second,
			ClaimAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: "hiqnet",
		},
		Discovery: DiscoveryConfig{
			Advertise: true,
		},
	}
}

// Parse overlays YAML data onto Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var result error
	fail := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Device.Name == "" {
		fail("device.name is required")
	}
	serial := c.Device.SerialNumber
	if serial == "" {
		serial = c.Device.Name
	}
	if len(serial) > wire.SerialNumberSize {
		fail("serial number %q longer than %d bytes", serial, wire.SerialNumberSize)
	}
	if c.Device.Address != 0 && !wire.ValidDeviceAddress(c.Device.Address) {
		fail("device.address %d not in %d-%d", c.Device.Address, wire.MinDeviceAddress, wire.MaxDeviceAddress)
	}
	if c.Device.SoftwareVersion != "" {
		if _, err := version.Parse(c.Device.SoftwareVersion); err != nil {
			fail("device.software_version: %v", err)
		}
	}

	if c.Network.Port < 0 || c.Network.Port > 65535 {
		fail("network.port %d out of range", c.Network.Port)
	}
	if !validBroadcast(c.Network.Broadcast) {
		fail("network.broadcast %q is not an IP address or IP:port", c.Network.Broadcast)
	}
	if c.Network.Gateway != "" {
		if gw, err := netip.ParseAddr(c.Network.Gateway); err != nil || !gw.Unmap().Is4() {
			fail("network.gateway %q is not an IPv4 address", c.Network.Gateway)
		}
	}
	if c.Network.MaxMessageSize < wire.MinHeaderLength || c.Network.MaxMessageSize > wire.MaxMessageSize {
		fail("network.max_message_size %d not in %d-%d", c.Network.MaxMessageSize, wire.MinHeaderLength, wire.MaxMessageSize)
	}
	if c.Network.DialTimeout <= 0 {
		fail("network.dial_timeout must be positive")
	}

	maxKeepAlive := time.Duration(^uint16(0)) * time.Millisecond
	if c.Node.KeepAlive < time.Millisecond || c.Node.KeepAlive > maxKeepAlive {
		fail("node.keepalive %s not in 1ms-%s", c.Node.KeepAlive, maxKeepAlive)
	}
	if c.Node.ClaimTimeout <= 0 {
		fail("node.claim_timeout must be positive")
	}
	if c.Node.ClaimAttempts < 1 {
		fail("node.claim_attempts must be at least 1")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		fail("log.level: %v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		fail("log.format %q must be text or json", c.Log.Format)
	}

	return result
}

// KeepAliveMillis returns the keepalive period as announced on the wire.
func (c *Config) KeepAliveMillis() uint16 {
	return uint16(c.Node.KeepAlive / time.Millisecond)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return l, nil
}

func validBroadcast(s string) bool {
	if _, err := netip.ParseAddr(s); err == nil {
		return true
	}
	_, err := netip.ParseAddrPort(s)
	return err == nil
}
