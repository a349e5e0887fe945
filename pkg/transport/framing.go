package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// Framing constants.
const (
	// PrefixSize is the number of leading header bytes needed to learn a
	// command's total length: version(1), header length(1), command length(4).
	PrefixSize = 6

	// DefaultMaxMessageSize bounds a single command on the stream channel.
	DefaultMaxMessageSize = wire.MaxMessageSize

	// MaxLogFrameDataSize caps the bytes copied into frame log events.
	MaxLogFrameDataSize = 4096
)

// Framing errors.
var (
	// ErrMessageTooLarge indicates a command length above the maximum.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrMessageTooShort indicates a command length below the fixed header.
	ErrMessageTooShort = errors.New("message shorter than header")

	// ErrFrameTruncated indicates the stream ended inside a command.
	ErrFrameTruncated = errors.New("frame truncated")
)

// HiQnet commands on a stream are self-delimiting: the command length
// field at offset 2 covers the whole command, so frames are written as-is
// and read by peeking at the first PrefixSize bytes.

// FrameLength reads the command length from the first PrefixSize bytes of
// a frame and checks it against the header size and max.
func FrameLength(prefix []byte, max uint32) (uint32, error) {
	if len(prefix) < PrefixSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrFrameTruncated, len(prefix))
	}
	length := binary.BigEndian.Uint32(prefix[2:PrefixSize])
	if length < wire.MinHeaderLength {
		return 0, fmt.Errorf("%w: command length %d", ErrMessageTooShort, length)
	}
	if length > max {
		return 0, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, max)
	}
	return length, nil
}

// FrameWriter writes encoded commands to a stream.
type FrameWriter struct {
	w              io.Writer
	maxMessageSize uint32
	mu             sync.Mutex

	logger log.Logger
	connID string
	remote string
}

// NewFrameWriter creates a frame writer with the default size limit.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w, maxMessageSize: DefaultMaxMessageSize}
}

// SetLogger configures frame logging. Pass nil to disable.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID, remote string) {
	fw.logger = logger
	fw.connID = connID
	fw.remote = remote
}

// WriteFrame writes one encoded command. It is safe for concurrent use.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) < wire.MinHeaderLength {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooShort, len(data))
	}
	if uint64(len(data)) > uint64(fw.maxMessageSize) {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), fw.maxMessageSize)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if fw.logger != nil {
		fw.logger.Log(frameEvent(data, log.DirectionOut, log.ChannelTCP, fw.connID, fw.remote))
	}
	return nil
}

// FrameReader reads whole commands from a stream.
type FrameReader struct {
	r              io.Reader
	maxMessageSize uint32
	prefix         [PrefixSize]byte

	logger log.Logger
	connID string
	remote string
}

// NewFrameReader creates a frame reader with the default size limit.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, maxMessageSize: DefaultMaxMessageSize}
}

// SetLogger configures frame logging. Pass nil to disable.
func (fr *FrameReader) SetLogger(logger log.Logger, connID, remote string) {
	fr.logger = logger
	fr.connID = connID
	fr.remote = remote
}

// SetMaxMessageSize updates the size limit.
func (fr *FrameReader) SetMaxMessageSize(size uint32) {
	fr.maxMessageSize = size
}

// ReadFrame returns the next complete command, including its header.
// io.EOF is returned only at a clean command boundary.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.prefix[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read frame prefix: %w", err)
	}

	length, err := FrameLength(fr.prefix[:], fr.maxMessageSize)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, length)
	copy(frame, fr.prefix[:])
	if _, err := io.ReadFull(fr.r, frame[PrefixSize:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	if fr.logger != nil {
		fr.logger.Log(frameEvent(frame, log.DirectionIn, log.ChannelTCP, fr.connID, fr.remote))
	}
	return frame, nil
}

// Framer combines frame reading and writing on one stream.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer for rw.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw),
		FrameWriter: NewFrameWriter(rw),
	}
}

// SetLogger configures logging for both directions.
func (f *Framer) SetLogger(logger log.Logger, connID, remote string) {
	f.FrameReader.SetLogger(logger, connID, remote)
	f.FrameWriter.SetLogger(logger, connID, remote)
}

// frameEvent builds a transport-layer log event for raw bytes.
func frameEvent(data []byte, dir log.Direction, ch log.Channel, connID, remote string) log.Event {
	frameData := data
	truncated := false
	if len(data) > MaxLogFrameDataSize {
		frameData = data[:MaxLogFrameDataSize]
		truncated = true
	}
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Channel:      ch,
		RemoteAddr:   remote,
		Frame: &log.FrameEvent{
			Size:      len(data),
			Data:      append([]byte(nil), frameData...),
			Truncated: truncated,
		},
	}
}
