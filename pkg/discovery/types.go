package discovery

import (
	"errors"
	"time"
)

// Service constants for DNS-SD.
const (
	// ServiceType is the DNS-SD service type advertised by HiQnet nodes.
	ServiceType = "_hiqnet._udp"

	// Domain is the mDNS domain.
	Domain = "local"

	// BrowseTimeout is the default timeout for Find.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyAddress = "addr"   // HiQnet device address (decimal)
	TXTKeySerial  = "serial" // Serial number
	TXTKeyName    = "name"   // Device name (optional)
	TXTKeyClass   = "class"  // Class name (optional)
	TXTKeyVersion = "ver"    // Software version (optional)
)

// Errors.
var (
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrNotAdvertising      = errors.New("not advertising")
	ErrNotFound            = errors.New("not found")
)

// NodeInfo describes a node for advertisement.
type NodeInfo struct {
	// InstanceName is the DNS-SD instance label. Defaults to the device name.
	InstanceName string

	// Address is the HiQnet device address.
	Address uint16

	// Port is the HiQnet port (3804 unless overridden).
	Port uint16

	SerialNumber    string
	Name            string
	ClassName       string
	SoftwareVersion string
}

// Service is a node found by browsing.
type Service struct {
	NodeInfo

	// Host is the advertised host name.
	Host string

	// Addresses are the IP addresses the service resolved to.
	Addresses []string
}
