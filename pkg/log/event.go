package log

import (
	"strings"
	"time"

	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the TCP connection (UUID) or the UDP socket.
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Channel is the transport the bytes travelled on.
	Channel Channel `cbor:"6,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// DeviceAddress is the local HiQnet device address, once known.
	DeviceAddress uint16 `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection/address state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport sees raw datagrams and stream frames.
	LayerTransport Layer = iota
	// LayerWire sees decoded commands.
	LayerWire
	// LayerDevice sees addressing and peer bookkeeping.
	LayerDevice
)

// Category classifies the event type.
type Category uint8

const (
	CategoryMessage Category = iota
	CategoryState
	CategoryError
)

// Channel is the transport a command used.
type Channel uint8

const (
	// ChannelUDP carries everything not flagged guaranteed.
	ChannelUDP Channel = iota
	// ChannelTCP carries guaranteed commands.
	ChannelTCP
)

var (
	directionNames = []string{"IN", "OUT"}
	layerNames     = []string{"TRANSPORT", "WIRE", "DEVICE"}
	categoryNames  = []string{"MESSAGE", "STATE", "ERROR"}
	channelNames   = []string{"UDP", "TCP"}
	entityNames    = []string{"CONNECTION", "ADDRESS", "PEER"}
)

func (d Direction) String() string   { return enumName(directionNames, d) }
func (l Layer) String() string       { return enumName(layerNames, l) }
func (c Category) String() string    { return enumName(categoryNames, c) }
func (c Channel) String() string     { return enumName(channelNames, c) }
func (s StateEntity) String() string { return enumName(entityNames, s) }

// ParseDirection accepts a direction name in any case.
func ParseDirection(s string) (Direction, bool) { return parseEnum[Direction](directionNames, s) }

// ParseLayer accepts a layer name in any case.
func ParseLayer(s string) (Layer, bool) { return parseEnum[Layer](layerNames, s) }

// ParseCategory accepts a category name in any case.
func ParseCategory(s string) (Category, bool) { return parseEnum[Category](categoryNames, s) }

// ParseChannel accepts a channel name in any case.
func ParseChannel(s string) (Channel, bool) { return parseEnum[Channel](channelNames, s) }

func enumName[T ~uint8](names []string, v T) string {
	if int(v) < len(names) {
		return names[v]
	}
	return "UNKNOWN"
}

func parseEnum[T ~uint8](names []string, s string) (T, bool) {
	for i, name := range names {
		if strings.EqualFold(name, s) {
			return T(i), true
		}
	}
	return 0, false
}

// FrameEvent captures raw command bytes at the transport layer.
type FrameEvent struct {
	// Size is the datagram or stream frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded HiQnet command.
type MessageEvent struct {
	// MessageID is the raw 2-byte message id.
	MessageID uint16 `cbor:"1,keyasint"`

	// Name is the symbolic message name (DISCOINFO, HELLO, ...).
	Name string `cbor:"2,keyasint"`

	// Source and Destination are dotted addresses.
	Source      string `cbor:"3,keyasint"`
	Destination string `cbor:"4,keyasint"`

	Flags          uint16 `cbor:"5,keyasint"`
	SequenceNumber uint16 `cbor:"6,keyasint"`
	HopCounter     uint8  `cbor:"7,keyasint"`

	// SessionNumber is set when the session header is present.
	SessionNumber *uint16 `cbor:"8,keyasint,omitempty"`

	// PayloadSize is the payload length in bytes.
	PayloadSize int `cbor:"9,keyasint"`

	// SerialNumber is the serial carried by DISCOINFO commands.
	SerialNumber string `cbor:"10,keyasint,omitempty"`
}

// NewMessageEvent summarizes a command for logging.
func NewMessageEvent(cmd *wire.Command) *MessageEvent {
	m := &MessageEvent{
		MessageID:      uint16(cmd.MessageType),
		Name:           cmd.MessageType.String(),
		Source:         cmd.Source.String(),
		Destination:    cmd.Destination.String(),
		Flags:          uint16(cmd.Flags),
		SequenceNumber: cmd.SequenceNumber,
		HopCounter:     cmd.HopCounter,
		PayloadSize:    len(cmd.Payload),
	}
	if cmd.Flags.Session() {
		sn := cmd.SessionNumber
		m.SessionNumber = &sn
	}
	if cmd.DiscoInfo != nil {
		m.SerialNumber = cmd.DiscoInfo.SerialNumber
	}
	return m
}

// StateChangeEvent captures connection and addressing lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection is a TCP connection opening or closing.
	StateEntityConnection StateEntity = iota
	// StateEntityAddress is the local device address.
	StateEntityAddress
	// StateEntityPeer is a remote device appearing or expiring.
	StateEntityPeer
)

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Kind classifies decode failures (framing, protocol, not_implemented).
	Kind string `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
