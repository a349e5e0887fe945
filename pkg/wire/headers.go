package wire

import (
	"encoding/binary"
	"fmt"
)

// Optional header sizes.
const (
	SessionHeaderSize   = 2
	MultipartHeaderSize = 5
)

// ErrorHeader is the optional error header (flag bit 3).
type ErrorHeader struct {
	Code    uint8
	Message string
}

// MultipartHeader is the optional multi-part header (flag bit 6).
type MultipartHeader struct {
	StartSequence  uint8
	BytesRemaining uint32
}

// appendOptionalHeaders writes the optional headers selected by c.Flags in
// the fixed order error, multi-part, session.
func (c *Command) appendOptionalHeaders(b []byte) ([]byte, error) {
	if c.Flags.Error() {
		return nil, fmt.Errorf("%w: error header", ErrNotImplemented)
	}
	if c.Flags.Multipart() {
		return nil, fmt.Errorf("%w: multi-part header", ErrNotImplemented)
	}
	if c.Flags.Session() {
		b = binary.BigEndian.AppendUint16(b, c.SessionNumber)
	}
	return b, nil
}

// optionalHeadersLen returns the encoded size of the optional headers.
func (c *Command) optionalHeadersLen() int {
	n := 0
	if c.Flags.Session() {
		n += SessionHeaderSize
	}
	return n
}

// parseOptionalHeaders reads the optional headers from b, which spans the
// bytes between the fixed header and the payload. Bytes not accounted for
// by a set flag are ignored.
func (c *Command) parseOptionalHeaders(b []byte) error {
	if c.Flags.Error() {
		return fmt.Errorf("%w: error header", ErrNotImplemented)
	}
	if c.Flags.Multipart() {
		return fmt.Errorf("%w: multi-part header", ErrNotImplemented)
	}
	if c.Flags.Session() {
		if len(b) < SessionHeaderSize {
			return fmt.Errorf("%w: session header truncated", ErrFraming)
		}
		c.SessionNumber = binary.BigEndian.Uint16(b[0:SessionHeaderSize])
	}
	return nil
}
