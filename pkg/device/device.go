package device

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/hiqontrol/hiqnet-go/pkg/version"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// Manager is the device manager virtual device (VD 0) identity.
type Manager struct {
	// Name is the user-visible device name.
	Name string

	// ClassName is the registered device type. Defaults to Name.
	ClassName string

	Flags wire.Flags

	// SerialNumber defaults to Name. DISCOINFO encoding fails with
	// wire.ErrRange for serials longer than wire.SerialNumberSize bytes.
	SerialNumber string

	// SoftwareVersion defaults to version.Current.
	SoftwareVersion string
}

// NewManager returns a manager with class name and serial number defaulted
// to name.
func NewManager(name string) Manager {
	return Manager{Name: name}.withDefaults()
}

func (m Manager) withDefaults() Manager {
	if m.ClassName == "" {
		m.ClassName = m.Name
	}
	if m.SerialNumber == "" {
		m.SerialNumber = m.Name
	}
	if m.SoftwareVersion == "" {
		m.SoftwareVersion = version.Current
	}
	return m
}

// Device is the local node. It is safe for concurrent use.
type Device struct {
	seq *wire.Sequence

	mu        sync.RWMutex
	address   uint16
	manager   Manager
	network   wire.NetworkInfo
	keepAlive uint16
}

// Option configures a Device.
type Option func(*Device)

// WithSequence shares an existing sequence counter.
func WithSequence(seq *wire.Sequence) Option {
	return func(d *Device) { d.seq = seq }
}

// WithKeepAlive sets the keepalive period in milliseconds announced in
// DISCOINFO.
func WithKeepAlive(ms uint16) Option {
	return func(d *Device) { d.keepAlive = ms }
}

// WithManager replaces the default manager built from the name. Empty
// fields are defaulted as in NewManager.
func WithManager(m Manager) Option {
	return func(d *Device) { d.manager = m.withDefaults() }
}

// New creates a device named name at address. The address must be in
// [wire.MinDeviceAddress, wire.MaxDeviceAddress].
func New(name string, address uint16, network wire.NetworkInfo, opts ...Option) (*Device, error) {
	d := &Device{
		manager:   NewManager(name),
		network:   network,
		keepAlive: wire.DefaultKeepAlive,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.seq == nil {
		d.seq = &wire.Sequence{}
	}
	if err := d.SetAddress(address); err != nil {
		return nil, err
	}
	return d, nil
}

// NegotiateAddress returns a uniformly random device address in
// [wire.MinDeviceAddress, wire.MaxDeviceAddress]. It does not check the
// network; see node.ClaimAddress for the on-network check.
func NegotiateAddress() uint16 {
	return wire.MinDeviceAddress + uint16(rand.IntN(int(wire.MaxDeviceAddress-wire.MinDeviceAddress)+1))
}

// SetAddress changes the device address.
func (d *Device) SetAddress(addr uint16) error {
	if !wire.ValidDeviceAddress(addr) {
		return fmt.Errorf("%w: device address %d not in %d-%d", wire.ErrRange, addr, wire.MinDeviceAddress, wire.MaxDeviceAddress)
	}
	d.mu.Lock()
	d.address = addr
	d.mu.Unlock()
	return nil
}

// DeviceAddress returns the 16-bit device address.
func (d *Device) DeviceAddress() uint16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.address
}

// Address returns the fully qualified address of the device manager.
func (d *Device) Address() wire.Address {
	return wire.DeviceAddress(d.DeviceAddress())
}

// Manager returns a copy of the manager identity.
func (d *Device) Manager() Manager {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.manager
}

// SetName renames the device. Class name and serial number are kept.
func (d *Device) SetName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.manager.Name = name
}

// Network returns the network information announced in DISCOINFO.
func (d *Device) Network() wire.NetworkInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.network
}

// SetNetwork replaces the network information, e.g. after the interface
// address changed.
func (d *Device) SetNetwork(n wire.NetworkInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.network = n
}

// Sequence returns the counter used for commands originated by d.
func (d *Device) Sequence() *wire.Sequence {
	return d.seq
}
