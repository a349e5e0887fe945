package wire

import (
	"fmt"
	"net"
	"net/netip"
)

// NetworkID selects the network-specific block of a DiscoInfo payload.
type NetworkID uint8

// Network identifiers. 2 and 3 are reserved.
const (
	NetworkTCPIP NetworkID = 1
	NetworkRS232 NetworkID = 4
)

// String returns the network name.
func (n NetworkID) String() string {
	switch n {
	case NetworkTCPIP:
		return "TCP/IP"
	case NetworkRS232:
		return "RS232"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(n))
	}
}

// ipNetworkInfoSize is mac(6) + dhcp(1) + ip(4) + mask(4) + gateway(4).
const ipNetworkInfoSize = 19

// NetworkInfo describes how a device is attached to the network.
// The concrete type is selected by the wire network id; IPNetworkInfo and
// RS232NetworkInfo are the only implementations.
type NetworkInfo interface {
	NetworkID() NetworkID
	appendTo(b []byte) ([]byte, error)
}

var (
	_ NetworkInfo = (*IPNetworkInfo)(nil)
	_ NetworkInfo = (*RS232NetworkInfo)(nil)
)

// IPNetworkInfo is the TCP/IP network block.
type IPNetworkInfo struct {
	MAC        net.HardwareAddr
	DHCP       bool
	IP         netip.Addr
	SubnetMask netip.Addr
	Gateway    netip.Addr
}

// NetworkID returns NetworkTCPIP.
func (n *IPNetworkInfo) NetworkID() NetworkID { return NetworkTCPIP }

func (n *IPNetworkInfo) appendTo(b []byte) ([]byte, error) {
	mac := n.MAC
	if len(mac) == 0 {
		mac = make(net.HardwareAddr, 6)
	}
	if len(mac) != 6 {
		return nil, fmt.Errorf("%w: mac address must be 6 bytes, got %d", ErrInvalidArgument, len(mac))
	}
	b = append(b, mac...)
	if n.DHCP {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	for _, a := range []netip.Addr{n.IP, n.SubnetMask, n.Gateway} {
		v4, err := ipv4Bytes(a)
		if err != nil {
			return nil, err
		}
		b = append(b, v4[:]...)
	}
	return b, nil
}

// ipv4Bytes returns the 4 address bytes; the zero Addr encodes as 0.0.0.0.
func ipv4Bytes(a netip.Addr) ([4]byte, error) {
	if !a.IsValid() {
		return [4]byte{}, nil
	}
	a = a.Unmap()
	if !a.Is4() {
		return [4]byte{}, fmt.Errorf("%w: %s is not an IPv4 address", ErrInvalidArgument, a)
	}
	return a.As4(), nil
}

func decodeIPNetworkInfo(b []byte) (*IPNetworkInfo, error) {
	if len(b) < ipNetworkInfoSize {
		return nil, fmt.Errorf("%w: TCP/IP network block requires %d bytes, got %d", ErrFraming, ipNetworkInfoSize, len(b))
	}
	mac := make(net.HardwareAddr, 6)
	copy(mac, b[0:6])
	return &IPNetworkInfo{
		MAC:        mac,
		DHCP:       b[6] != 0,
		IP:         netip.AddrFrom4([4]byte(b[7:11])),
		SubnetMask: netip.AddrFrom4([4]byte(b[11:15])),
		Gateway:    netip.AddrFrom4([4]byte(b[15:19])),
	}, nil
}

// Parity of an RS232 link.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

// StopBits of an RS232 link.
type StopBits uint8

const (
	StopBits1 StopBits = iota
	StopBits1_5
	StopBits2
)

// FlowControl of an RS232 link.
type FlowControl uint8

const (
	FlowNone FlowControl = iota
	FlowHardware
	FlowXonXoff
)

// RS232NetworkInfo is the serial network block. Its wire form is
// com(1) baud(4) parity(1) stop(1) data(1) flow(1); encoding and decoding
// it returns ErrNotImplemented.
type RS232NetworkInfo struct {
	ComID       uint8
	BaudRate    uint32
	Parity      Parity
	StopBits    StopBits
	DataBits    uint8 // 4-9
	FlowControl FlowControl
}

// NetworkID returns NetworkRS232.
func (n *RS232NetworkInfo) NetworkID() NetworkID { return NetworkRS232 }

func (n *RS232NetworkInfo) appendTo([]byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: RS232 network info", ErrNotImplemented)
}

func decodeNetworkInfo(id NetworkID, b []byte) (NetworkInfo, error) {
	switch id {
	case NetworkTCPIP:
		return decodeIPNetworkInfo(b)
	case NetworkRS232:
		return nil, fmt.Errorf("%w: RS232 network info", ErrNotImplemented)
	default:
		return nil, fmt.Errorf("%w: network id %d", ErrNotImplemented, uint8(id))
	}
}
