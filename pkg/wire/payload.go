package wire

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Locate times.
const (
	LocateOffTime uint16 = 0x0000
	LocateOnTime  uint16 = 0xFFFF
)

// EncodeDiscoInfo turns c into a DISCOINFO command carrying d. info selects
// the information form (Info flag set) instead of a query.
func (c *Command) EncodeDiscoInfo(d *DiscoInfo, info bool) error {
	payload, err := d.Encode()
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", MsgDiscoInfo, err)
	}
	c.MessageType = MsgDiscoInfo
	c.Flags.SetInfo(info)
	c.Payload = payload
	c.DiscoInfo = d
	return nil
}

// EncodeHello turns c into a HELLO command opening a session. The random
// session number is returned so replies can be correlated.
func (c *Command) EncodeHello() (uint16, error) {
	var sn [2]byte
	if _, err := rand.Read(sn[:]); err != nil {
		return 0, fmt.Errorf("session number: %w", err)
	}
	c.MessageType = MsgHello
	c.Payload = binary.BigEndian.AppendUint16(sn[:], uint16(SupportedFlagMask))
	return binary.BigEndian.Uint16(sn[:]), nil
}

// Hello is the decoded HELLO payload.
type Hello struct {
	SessionNumber uint16
	FlagMask      Flags
}

// DecodeHello parses a HELLO payload.
func DecodeHello(b []byte) (Hello, error) {
	if len(b) != 4 {
		return Hello{}, fmt.Errorf("%w: hello payload requires 4 bytes, got %d", ErrFraming, len(b))
	}
	return Hello{
		SessionNumber: binary.BigEndian.Uint16(b[0:2]),
		FlagMask:      Flags(binary.BigEndian.Uint16(b[2:4])),
	}, nil
}

// EncodeLocate turns c into a LOCATE command. time is LocateOnTime,
// LocateOffTime or a duration in milliseconds.
func (c *Command) EncodeLocate(time uint16, serial []byte) error {
	if len(serial) > 0xFFFF {
		return fmt.Errorf("%w: serial number too long", ErrRange)
	}
	b := make([]byte, 0, 4+len(serial))
	b = binary.BigEndian.AppendUint16(b, time)
	b = binary.BigEndian.AppendUint16(b, uint16(len(serial)))
	c.MessageType = MsgLocate
	c.Payload = append(b, serial...)
	return nil
}

// LocateOn asks the device with the given serial to start identifying itself.
func (c *Command) LocateOn(serial []byte) error {
	return c.EncodeLocate(LocateOnTime, serial)
}

// LocateOff asks the device with the given serial to stop identifying itself.
func (c *Command) LocateOff(serial []byte) error {
	return c.EncodeLocate(LocateOffTime, serial)
}

// Locate is the decoded LOCATE payload.
type Locate struct {
	Time         uint16
	SerialNumber []byte
}

// On reports whether the locate indicator should be lit.
func (l Locate) On() bool {
	return l.Time != LocateOffTime
}

// DecodeLocate parses a LOCATE payload.
func DecodeLocate(b []byte) (Locate, error) {
	if len(b) < 4 {
		return Locate{}, fmt.Errorf("%w: locate payload requires at least 4 bytes, got %d", ErrFraming, len(b))
	}
	n := int(binary.BigEndian.Uint16(b[2:4]))
	if len(b) < 4+n {
		return Locate{}, fmt.Errorf("%w: locate serial length %d exceeds payload", ErrFraming, n)
	}
	return Locate{
		Time:         binary.BigEndian.Uint16(b[0:2]),
		SerialNumber: append([]byte(nil), b[4:4+n]...),
	}, nil
}

// EncodeRequestAddress turns c into a REQADDR command asking whether addr
// is in use.
func (c *Command) EncodeRequestAddress(addr uint16) error {
	if !ValidDeviceAddress(addr) {
		return fmt.Errorf("%w: device address %d not in %d-%d", ErrRange, addr, MinDeviceAddress, MaxDeviceAddress)
	}
	c.MessageType = MsgRequestAddress
	c.Payload = binary.BigEndian.AppendUint16(nil, addr)
	return nil
}

// DecodeRequestAddress parses a REQADDR payload.
func DecodeRequestAddress(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("%w: request address payload requires 2 bytes, got %d", ErrFraming, len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

// EncodeAddressUsed turns c into an ADDRUSED reply. It has no payload.
func (c *Command) EncodeAddressUsed() {
	c.MessageType = MsgAddressUsed
	c.Payload = nil
}

// EncodeGoodbye turns c into a GOODBYE command announcing that device addr
// is leaving the network.
func (c *Command) EncodeGoodbye(addr uint16) {
	c.MessageType = MsgGoodbye
	c.Payload = binary.BigEndian.AppendUint16(nil, addr)
}

// DecodeGoodbye parses a GOODBYE payload.
func DecodeGoodbye(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("%w: goodbye payload requires 2 bytes, got %d", ErrFraming, len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

// EncodeGetVDList turns c into a GETVDLIST command. An empty workgroup
// produces an empty payload.
func (c *Command) EncodeGetVDList(workgroup string) {
	c.MessageType = MsgGetVDList
	c.Payload = nil
	if workgroup != "" {
		c.Payload = []byte(workgroup)
	}
}

// DecodeGetVDList returns the workgroup carried by a GETVDLIST payload.
func DecodeGetVDList(b []byte) string {
	return string(b)
}

// EncodeStore sets the STORE message type. Preset payloads are not
// supported, so it always returns ErrNotImplemented.
func (c *Command) EncodeStore() error {
	c.MessageType = MsgStore
	return fmt.Errorf("%w: %s payload", ErrNotImplemented, MsgStore)
}

// EncodeRecall sets the RECALL message type and returns ErrNotImplemented.
func (c *Command) EncodeRecall() error {
	c.MessageType = MsgRecall
	return fmt.Errorf("%w: %s payload", ErrNotImplemented, MsgRecall)
}

// EncodeGetAttributes sets the GETATTR message type and returns
// ErrNotImplemented.
func (c *Command) EncodeGetAttributes() error {
	c.MessageType = MsgGetAttributes
	return fmt.Errorf("%w: %s payload", ErrNotImplemented, MsgGetAttributes)
}
