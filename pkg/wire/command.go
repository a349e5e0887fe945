package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Header constants.
const (
	// ProtocolVersion is the version written by this package.
	ProtocolVersion uint8 = 2

	MinProtocolVersion uint8 = 1
	MaxProtocolVersion uint8 = 3

	// MinHeaderLength is the size of the fixed header.
	MinHeaderLength = 25

	// DefaultHopCounter bounds broadcast propagation.
	DefaultHopCounter uint8 = 5

	// MaxMessageSize is the largest command accepted from a stream.
	MaxMessageSize = 65535

	// Port is the UDP and TCP port of the base protocol.
	Port = 3804
)

// Command is a single HiQnet message.
//
// Commands are built with NewCommand plus one of the payload builders, or
// reconstructed with DecodeCommand. A command is not modified after Encode
// or DecodeCommand returns, except for the computed length fields which
// Encode refreshes.
type Command struct {
	Version        uint8
	HeaderLength   uint8
	CommandLength  uint32
	Source         Address
	Destination    Address
	MessageType    MessageType
	Flags          Flags
	HopCounter     uint8
	SequenceNumber uint16

	// Optional headers. Error and Multipart are carried for completeness;
	// encoding or decoding a command whose flags select them fails with
	// ErrNotImplemented.
	Error         *ErrorHeader
	Multipart     *MultipartHeader
	SessionNumber uint16

	Payload []byte

	// DiscoInfo holds the decoded payload of a DISCOINFO command.
	DiscoInfo *DiscoInfo
}

// NewCommand builds an outbound command and assigns it the next sequence
// number from seq.
func NewCommand(seq *Sequence, src, dst Address, mt MessageType) *Command {
	return &Command{
		Version:        ProtocolVersion,
		HeaderLength:   MinHeaderLength,
		CommandLength:  MinHeaderLength,
		Source:         src,
		Destination:    dst,
		MessageType:    mt,
		HopCounter:     DefaultHopCounter,
		SequenceNumber: seq.Next(),
	}
}

// Encode serializes the command, updating HeaderLength and CommandLength.
func (c *Command) Encode() ([]byte, error) {
	if c.Version < MinProtocolVersion || c.Version > MaxProtocolVersion {
		return nil, fmt.Errorf("%w: version %d not in %d-%d", ErrProtocol, c.Version, MinProtocolVersion, MaxProtocolVersion)
	}

	headerLen := MinHeaderLength + c.optionalHeadersLen()
	if headerLen > 0xFF {
		return nil, fmt.Errorf("%w: header length %d", ErrRange, headerLen)
	}
	commandLen := headerLen + len(c.Payload)
	if uint64(commandLen) > 0xFFFFFFFF {
		return nil, fmt.Errorf("%w: command length %d", ErrRange, commandLen)
	}

	b := make([]byte, 0, commandLen)
	b = append(b, c.Version, byte(headerLen))
	b = binary.BigEndian.AppendUint32(b, uint32(commandLen))
	b = c.Source.AppendTo(b)
	b = c.Destination.AppendTo(b)
	b = binary.BigEndian.AppendUint16(b, uint16(c.MessageType))
	b = binary.BigEndian.AppendUint16(b, uint16(c.Flags))
	b = append(b, c.HopCounter)
	b = binary.BigEndian.AppendUint16(b, c.SequenceNumber)
	b, err := c.appendOptionalHeaders(b)
	if err != nil {
		return nil, err
	}
	b = append(b, c.Payload...)

	c.HeaderLength = uint8(headerLen)
	c.CommandLength = uint32(commandLen)
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c *Command) MarshalBinary() ([]byte, error) {
	return c.Encode()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Command) UnmarshalBinary(data []byte) error {
	decoded, err := DecodeCommand(data)
	if err != nil {
		return err
	}
	*c = *decoded
	return nil
}

// DecodeCommand parses a complete command. data must hold exactly one
// command: its length has to match the embedded command length.
//
// An unregistered message id is not an error; the payload is left raw.
// Only DISCOINFO payloads are decoded, into Command.DiscoInfo.
func DecodeCommand(data []byte) (*Command, error) {
	if len(data) < MinHeaderLength {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %d byte header", ErrFraming, len(data), MinHeaderLength)
	}

	c := &Command{Version: data[0]}
	if c.Version < MinProtocolVersion || c.Version > MaxProtocolVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrProtocol, c.Version)
	}

	c.HeaderLength = data[1]
	if c.HeaderLength < MinHeaderLength {
		return nil, fmt.Errorf("%w: header length %d below minimum %d", ErrFraming, c.HeaderLength, MinHeaderLength)
	}
	if len(data) < int(c.HeaderLength) {
		return nil, fmt.Errorf("%w: %d bytes is shorter than header length %d", ErrFraming, len(data), c.HeaderLength)
	}

	c.CommandLength = binary.BigEndian.Uint32(data[2:6])
	if uint64(c.CommandLength) != uint64(len(data)) {
		return nil, fmt.Errorf("%w: command length %d does not match %d received bytes", ErrFraming, c.CommandLength, len(data))
	}

	var err error
	if c.Source, err = ParseAddress(data[6:12]); err != nil {
		return nil, err
	}
	if c.Destination, err = ParseAddress(data[12:18]); err != nil {
		return nil, err
	}
	c.MessageType, err = ParseMessageType(data[18:20])
	if err != nil && !errors.Is(err, ErrUnknownMessageType) {
		return nil, err
	}
	c.Flags = Flags(binary.BigEndian.Uint16(data[20:22]))
	c.HopCounter = data[22]
	c.SequenceNumber = binary.BigEndian.Uint16(data[23:25])

	if c.HeaderLength > MinHeaderLength {
		if err := c.parseOptionalHeaders(data[MinHeaderLength:c.HeaderLength]); err != nil {
			return nil, err
		}
	}

	if payload := data[c.HeaderLength:c.CommandLength]; len(payload) > 0 {
		c.Payload = append([]byte(nil), payload...)
	}

	if c.MessageType == MsgDiscoInfo {
		if c.DiscoInfo, err = DecodeDiscoInfo(c.Payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", c.MessageType, err)
		}
	}
	return c, nil
}

// IsQuery reports whether the command asks for information rather than
// supplying it (Info flag clear).
func (c *Command) IsQuery() bool {
	return !c.Flags.Info()
}

// Reply builds a command addressed back to the sender of c, sourced from
// self, with a fresh sequence number.
func (c *Command) Reply(seq *Sequence, self Address, mt MessageType) *Command {
	r := NewCommand(seq, self, c.Source, mt)
	r.Flags.SetGuaranteed(c.Flags.Guaranteed())
	return r
}

// String returns a one-line summary for logs.
func (c *Command) String() string {
	return fmt.Sprintf("%s %s->%s seq=%d flags=%s len=%d",
		c.MessageType, c.Source, c.Destination, c.SequenceNumber, c.Flags, len(c.Payload))
}
