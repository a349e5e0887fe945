package wire

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// FlagsSize is the encoded size of the flags word.
const FlagsSize = 2

// Flags is the 16-bit command flags word.
type Flags uint16

// Flag bits. Bits 4, 7 and 9-15 are reserved.
const (
	FlagRequestAck Flags = 1 << 0
	FlagAck        Flags = 1 << 1
	FlagInfo       Flags = 1 << 2
	FlagError      Flags = 1 << 3 // error header present
	FlagGuaranteed Flags = 1 << 5 // deliver over the reliable channel
	FlagMultipart  Flags = 1 << 6 // multi-part header present
	FlagSession    Flags = 1 << 8 // session header present
)

// SupportedFlagMask is the flag mask advertised in Hello payloads.
const SupportedFlagMask Flags = 0x01FF

var flagNames = []struct {
	bit  Flags
	name string
}{
	{FlagRequestAck, "REQACK"},
	{FlagAck, "ACK"},
	{FlagInfo, "INFO"},
	{FlagError, "ERROR"},
	{FlagGuaranteed, "GUARANTEED"},
	{FlagMultipart, "MULTIPART"},
	{FlagSession, "SESSION"},
}

// Has reports whether every bit in mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// With returns f with mask set or cleared.
func (f Flags) With(mask Flags, on bool) Flags {
	if on {
		return f | mask
	}
	return f &^ mask
}

// Set sets or clears mask in place.
func (f *Flags) Set(mask Flags, on bool) {
	*f = f.With(mask, on)
}

func (f Flags) RequestAck() bool { return f.Has(FlagRequestAck) }
func (f Flags) Ack() bool        { return f.Has(FlagAck) }
func (f Flags) Info() bool       { return f.Has(FlagInfo) }
func (f Flags) Error() bool      { return f.Has(FlagError) }
func (f Flags) Guaranteed() bool { return f.Has(FlagGuaranteed) }
func (f Flags) Multipart() bool  { return f.Has(FlagMultipart) }
func (f Flags) Session() bool    { return f.Has(FlagSession) }

func (f *Flags) SetRequestAck(on bool) { f.Set(FlagRequestAck, on) }
func (f *Flags) SetAck(on bool)        { f.Set(FlagAck, on) }
func (f *Flags) SetInfo(on bool)       { f.Set(FlagInfo, on) }
func (f *Flags) SetError(on bool)      { f.Set(FlagError, on) }
func (f *Flags) SetGuaranteed(on bool) { f.Set(FlagGuaranteed, on) }
func (f *Flags) SetMultipart(on bool)  { f.Set(FlagMultipart, on) }
func (f *Flags) SetSession(on bool)    { f.Set(FlagSession, on) }

// Encode returns the 2-byte big-endian representation.
func (f Flags) Encode() []byte {
	return binary.BigEndian.AppendUint16(make([]byte, 0, FlagsSize), uint16(f))
}

// ParseFlags decodes a 2-byte flags word.
func ParseFlags(b []byte) (Flags, error) {
	if len(b) != FlagsSize {
		return 0, fmt.Errorf("%w: flags require %d bytes, got %d", ErrFraming, FlagsSize, len(b))
	}
	return Flags(binary.BigEndian.Uint16(b)), nil
}

// String lists the set named bits, e.g. "INFO|GUARANTEED".
func (f Flags) String() string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.bit) {
			names = append(names, fn.name)
		}
	}
	if rest := f &^ SupportedFlagMask; rest != 0 {
		names = append(names, fmt.Sprintf("0x%04x", uint16(rest)))
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, "|")
}

// ParameterFlags is the 16-bit flags attribute of a parameter.
// Only bit 1 (sensor) is defined.
type ParameterFlags uint16

// ParamFlagSensor marks a read-only sensor parameter.
const ParamFlagSensor ParameterFlags = 1 << 1

// Sensor reports whether the parameter is a sensor.
func (p ParameterFlags) Sensor() bool {
	return p&ParamFlagSensor != 0
}

// SetSensor sets or clears the sensor bit.
func (p *ParameterFlags) SetSensor(on bool) {
	if on {
		*p |= ParamFlagSensor
	} else {
		*p &^= ParamFlagSensor
	}
}

// Encode returns the 2-byte big-endian representation.
func (p ParameterFlags) Encode() []byte {
	return binary.BigEndian.AppendUint16(make([]byte, 0, 2), uint16(p))
}
