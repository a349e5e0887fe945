package node

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/hiqontrol/hiqnet-go/pkg/config"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// ErrNoIPv4 is returned when no usable IPv4 interface is found.
var ErrNoIPv4 = errors.New("no IPv4 interface")

// InterfaceNetwork builds the TCP/IP network block announced in DISCOINFO
// from a local interface. An empty name picks the first interface that is
// up, not loopback and has an IPv4 address. The gateway is not discoverable
// portably and is left as 0.0.0.0; ConfigNetwork fills it in.
func InterfaceNetwork(name string, dhcp bool) (*wire.IPNetworkInfo, error) {
	var ifaces []net.Interface
	if name != "" {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", name, err)
		}
		ifaces = []net.Interface{*iface}
	} else {
		all, err := net.Interfaces()
		if err != nil {
			return nil, err
		}
		for _, iface := range all {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			ifaces = append(ifaces, iface)
		}
	}

	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			ip, _ := netip.AddrFromSlice(ipnet.IP.To4())
			m := ipnet.Mask
			if len(m) == net.IPv6len {
				m = m[12:]
			}
			mask, _ := netip.AddrFromSlice(m)
			mac := iface.HardwareAddr
			if len(mac) != 6 {
				mac = nil
			}
			return &wire.IPNetworkInfo{
				MAC:        mac,
				DHCP:       dhcp,
				IP:         ip,
				SubnetMask: mask,
			}, nil
		}
	}
	if name != "" {
		return nil, fmt.Errorf("%w on %q", ErrNoIPv4, name)
	}
	return nil, ErrNoIPv4
}

// ConfigNetwork builds the network block for cfg: interface details from
// InterfaceNetwork plus the configured gateway. When the interface cannot
// be read the block still carries the configured values and the error is
// returned with it.
func ConfigNetwork(cfg config.NetworkConfig) (*wire.IPNetworkInfo, error) {
	info, err := InterfaceNetwork(cfg.Interface, cfg.DHCP)
	if err != nil {
		info = &wire.IPNetworkInfo{DHCP: cfg.DHCP}
	}
	if cfg.Gateway != "" {
		gw, perr := netip.ParseAddr(cfg.Gateway)
		if perr != nil {
			return info, errors.Join(err, fmt.Errorf("gateway: %w", perr))
		}
		info.Gateway = gw.Unmap()
	}
	return info, err
}
