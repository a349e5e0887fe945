package wire

import (
	"encoding/binary"
	"fmt"
)

// Address constants.
const (
	// AddressSize is the encoded size of a fully qualified address.
	AddressSize = 6

	// BroadcastDevice is the reserved broadcast device address.
	BroadcastDevice uint16 = 0xFFFF

	// MinDeviceAddress is the lowest assignable device address.
	MinDeviceAddress uint16 = 1

	// MaxDeviceAddress is the highest assignable device address.
	MaxDeviceAddress uint16 = 0xFFFE

	// MaxObjectAddress is the largest 24-bit object address.
	MaxObjectAddress uint32 = 0xFFFFFF
)

// Address is a fully qualified HiQnet address.
//
// Addresses are values; build them with NewAddress, DeviceAddress or
// BroadcastAddress so broadcast addresses stay canonical.
type Address struct {
	Device uint16
	VD     uint8
	Object uint32 // 24 bits
}

// NewAddress builds an address from its three parts.
// Any address on the broadcast device is normalized to BroadcastAddress.
func NewAddress(device uint16, vd uint8, object uint32) (Address, error) {
	if object > MaxObjectAddress {
		return Address{}, fmt.Errorf("%w: object address %#x exceeds 24 bits", ErrRange, object)
	}
	if device == BroadcastDevice {
		return BroadcastAddress(), nil
	}
	return Address{Device: device, VD: vd, Object: object}, nil
}

// DeviceAddress returns the address of a device manager (VD 0, object 0).
func DeviceAddress(device uint16) Address {
	if device == BroadcastDevice {
		return BroadcastAddress()
	}
	return Address{Device: device}
}

// BroadcastAddress returns the fully qualified broadcast address.
func BroadcastAddress() Address {
	return Address{Device: BroadcastDevice}
}

// IsBroadcast reports whether the address targets every device.
func (a Address) IsBroadcast() bool {
	return a.Device == BroadcastDevice
}

// Equal compares two addresses. Broadcast addresses compare equal regardless
// of their VD and object parts.
func (a Address) Equal(b Address) bool {
	if a.IsBroadcast() || b.IsBroadcast() {
		return a.IsBroadcast() && b.IsBroadcast()
	}
	return a == b
}

// Encode returns the 6-byte big-endian representation.
func (a Address) Encode() []byte {
	return a.AppendTo(make([]byte, 0, AddressSize))
}

// AppendTo appends the encoded address to b.
func (a Address) AppendTo(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, a.Device)
	b = append(b, a.VD)
	return append(b, byte(a.Object>>16), byte(a.Object>>8), byte(a.Object))
}

// ParseAddress decodes a 6-byte address.
func ParseAddress(b []byte) (Address, error) {
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("%w: address requires %d bytes, got %d", ErrFraming, AddressSize, len(b))
	}
	object := uint32(b[3])<<16 | uint32(b[4])<<8 | uint32(b[5])
	return NewAddress(binary.BigEndian.Uint16(b[0:2]), b[2], object)
}

// String returns the dotted form device.vd.o1.o2.o3.
func (a Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d.%d", a.Device, a.VD,
		byte(a.Object>>16), byte(a.Object>>8), byte(a.Object))
}

// ValidDeviceAddress reports whether addr may be assigned to a device.
func ValidDeviceAddress(addr uint16) bool {
	return addr >= MinDeviceAddress && addr <= MaxDeviceAddress
}
