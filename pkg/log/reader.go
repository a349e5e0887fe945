package log

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero-valued fields match everything.
type Filter struct {
	ConnectionID string
	Direction    *Direction
	Layer        *Layer
	Category     *Category
	Channel      *Channel

	// MessageName matches Message.Name (e.g. "DISCOINFO").
	MessageName string

	// Device matches events logged by that device address, and messages
	// it sent or received.
	Device *uint16

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

func (f *Filter) matches(e Event) bool {
	switch {
	case f.ConnectionID != "" && e.ConnectionID != f.ConnectionID,
		f.Direction != nil && e.Direction != *f.Direction,
		f.Layer != nil && e.Layer != *f.Layer,
		f.Category != nil && e.Category != *f.Category,
		f.Channel != nil && e.Channel != *f.Channel,
		f.MessageName != "" && (e.Message == nil || e.Message.Name != f.MessageName),
		f.Device != nil && !involves(e, *f.Device),
		f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !e.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

func involves(e Event, device uint16) bool {
	if e.DeviceAddress != 0 && e.DeviceAddress == device {
		return true
	}
	if e.Message == nil {
		return false
	}
	return addressDevice(e.Message.Source) == device || addressDevice(e.Message.Destination) == device
}

// addressDevice extracts the device part of a dotted address. Malformed
// strings yield the broadcast address, which no filter selects on.
func addressDevice(addr string) uint16 {
	dev, _, _ := strings.Cut(addr, ".")
	n, err := strconv.ParseUint(dev, 10, 16)
	if err != nil {
		return 0xFFFF
	}
	return uint16(n)
}

// Reader iterates the events of a capture.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens a capture file.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file and returns only events matching
// filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewStreamReader(bufio.NewReader(f), filter)
	r.closer = f
	return r, nil
}

// NewStreamReader reads events from r.
func NewStreamReader(r io.Reader, filter Filter) *Reader {
	rd := &Reader{decoder: NewDecoder(r), filter: filter}
	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}
	return rd
}

// Next returns the next matching event, or io.EOF at the end of the capture.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying reader if it is closable.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
