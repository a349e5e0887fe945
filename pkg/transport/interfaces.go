package transport

import (
	"context"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// Sender writes encoded commands to the network. reliable selects the
// stream channel; otherwise dest receives a datagram.
type Sender interface {
	Send(ctx context.Context, data []byte, dest string, reliable bool) error
}

// Packet is one inbound datagram or stream frame.
type Packet struct {
	Data       []byte
	Channel    log.Channel
	RemoteAddr string
	ConnID     string
}

// PacketHandler receives raw inbound packets. It is called from the
// channel's read goroutine.
type PacketHandler func(ctx context.Context, p Packet)

// Inbound is a decoded command together with where it came from.
type Inbound struct {
	Command    *wire.Command
	Channel    log.Channel
	RemoteAddr string
	ConnID     string
}

// Reliable reports whether the command arrived on the stream channel.
func (in Inbound) Reliable() bool {
	return in.Channel == log.ChannelTCP
}

// Handler receives decoded inbound commands.
type Handler interface {
	HandleCommand(ctx context.Context, in Inbound)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, in Inbound)

// HandleCommand calls f.
func (f HandlerFunc) HandleCommand(ctx context.Context, in Inbound) { f(ctx, in) }

// FrameReadWriter reads and writes whole commands on a stream.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

var (
	_ Sender          = (*Endpoint)(nil)
	_ Handler         = HandlerFunc(nil)
	_ FrameReadWriter = (*Framer)(nil)
)
