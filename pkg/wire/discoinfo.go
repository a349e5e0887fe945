package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DiscoInfo defaults.
const (
	DefaultCost           uint8  = 1
	DefaultMaxMessageSize uint32 = 65535
	DefaultKeepAlive      uint16 = 10000 // ms

	// SerialNumberSize is the fixed serial field length used when encoding.
	SerialNumberSize = 16
)

// discoInfoFixedSize covers everything before the serial bytes and after
// them up to and including the network id.
const discoInfoFixedSize = 2 + 1 + 2 + 4 + 2 + 1

// DiscoInfo is the discovery payload: a device's identity and network
// attachment. The same payload is used for queries and for information
// replies; the Info flag on the command tells them apart.
type DiscoInfo struct {
	DeviceAddress   uint16
	Cost            uint8
	SerialNumber    string
	MaxMessageSize  uint32
	KeepAliveMillis uint16
	Network         NetworkInfo
}

// NewDiscoInfo returns a DiscoInfo with the protocol defaults.
func NewDiscoInfo(device uint16, serial string, network NetworkInfo) *DiscoInfo {
	return &DiscoInfo{
		DeviceAddress:   device,
		Cost:            DefaultCost,
		SerialNumber:    serial,
		MaxMessageSize:  DefaultMaxMessageSize,
		KeepAliveMillis: DefaultKeepAlive,
		Network:         network,
	}
}

// Encode serializes the payload. The serial number is NUL-padded to
// SerialNumberSize bytes.
func (d *DiscoInfo) Encode() ([]byte, error) {
	if len(d.SerialNumber) > SerialNumberSize {
		return nil, fmt.Errorf("%w: serial number longer than %d bytes", ErrRange, SerialNumberSize)
	}
	if d.Network == nil {
		return nil, fmt.Errorf("%w: missing network info", ErrInvalidArgument)
	}

	b := make([]byte, 0, discoInfoFixedSize+SerialNumberSize+ipNetworkInfoSize)
	b = binary.BigEndian.AppendUint16(b, d.DeviceAddress)
	b = append(b, d.Cost)
	b = binary.BigEndian.AppendUint16(b, SerialNumberSize)
	var serial [SerialNumberSize]byte
	copy(serial[:], d.SerialNumber)
	b = append(b, serial[:]...)
	b = binary.BigEndian.AppendUint32(b, d.MaxMessageSize)
	b = binary.BigEndian.AppendUint16(b, d.KeepAliveMillis)
	b = append(b, byte(d.Network.NetworkID()))
	return d.Network.appendTo(b)
}

// DecodeDiscoInfo parses a DiscoInfo payload. The serial length is taken
// from the wire; trailing NUL padding is removed.
func DecodeDiscoInfo(b []byte) (*DiscoInfo, error) {
	if len(b) < discoInfoFixedSize {
		return nil, fmt.Errorf("%w: disco info requires at least %d bytes, got %d", ErrFraming, discoInfoFixedSize, len(b))
	}
	d := &DiscoInfo{
		DeviceAddress: binary.BigEndian.Uint16(b[0:2]),
		Cost:          b[2],
	}
	serialLen := int(binary.BigEndian.Uint16(b[3:5]))
	rest := b[5:]
	if len(rest) < serialLen+discoInfoFixedSize-5 {
		return nil, fmt.Errorf("%w: disco info serial length %d exceeds payload", ErrFraming, serialLen)
	}
	d.SerialNumber = string(bytes.TrimRight(rest[:serialLen], "\x00"))
	rest = rest[serialLen:]
	d.MaxMessageSize = binary.BigEndian.Uint32(rest[0:4])
	d.KeepAliveMillis = binary.BigEndian.Uint16(rest[4:6])
	network, err := decodeNetworkInfo(NetworkID(rest[6]), rest[7:])
	if err != nil {
		return nil, err
	}
	d.Network = network
	return d, nil
}
