package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
	"github.com/hiqontrol/hiqnet-go/pkg/metrics"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// DefaultBroadcastAddr is the datagram destination for commands sent
// without an explicit destination.
const DefaultBroadcastAddr = "255.255.255.255"

// ErrNoDestination is returned when a guaranteed command has no
// destination. Guaranteed commands are never downgraded to broadcast.
var ErrNoDestination = errors.New("guaranteed command requires a destination")

// Dispatcher selects the delivery channel for outbound commands and
// decodes inbound packets.
//
// Commands with the Guaranteed flag go out on the reliable channel to an
// explicit destination; all others go out as datagrams, to the broadcast
// address when no destination is given.
type Dispatcher struct {
	sender    Sender
	logger    log.Logger
	metrics   *metrics.Collector
	broadcast string

	mu      sync.RWMutex
	handler Handler
	device  uint16
}

// NewDispatcher creates a dispatcher writing through sender.
func NewDispatcher(sender Sender, opts ...Option) *Dispatcher {
	o := applyOptions(opts)
	return &Dispatcher{
		sender:    sender,
		logger:    o.logger,
		metrics:   o.metrics,
		broadcast: JoinDefaultPort(o.broadcast),
		handler:   o.handler,
	}
}

// SetHandler replaces the inbound command handler.
func (d *Dispatcher) SetHandler(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// SetDeviceAddress tags subsequent log events with the local address.
func (d *Dispatcher) SetDeviceAddress(addr uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.device = addr
}

func (d *Dispatcher) state() (Handler, uint16) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handler, d.device
}

// Send encodes cmd and writes it on the channel its flags select.
// dest is "host" or "host:port"; the default port is wire.Port.
func (d *Dispatcher) Send(ctx context.Context, cmd *wire.Command, dest string) error {
	data, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.MessageType, err)
	}

	reliable := cmd.Flags.Guaranteed()
	if dest == "" {
		if reliable {
			return fmt.Errorf("%w: %s", ErrNoDestination, cmd.MessageType)
		}
		dest = d.broadcast
	}
	dest = JoinDefaultPort(dest)
	ch := channelFor(reliable)
	_, device := d.state()

	if err := d.sender.Send(ctx, data, dest, reliable); err != nil {
		d.metrics.SendError(ch.String())
		d.logger.Log(log.Event{
			Timestamp:     time.Now(),
			Direction:     log.DirectionOut,
			Layer:         log.LayerTransport,
			Category:      log.CategoryError,
			Channel:       ch,
			RemoteAddr:    dest,
			DeviceAddress: device,
			Error: &log.ErrorEventData{
				Layer:   log.LayerTransport,
				Message: err.Error(),
				Context: "send " + cmd.MessageType.String(),
			},
		})
		return err
	}

	d.metrics.CommandSent(ch.String(), cmd.MessageType.String(), len(data))
	d.logger.Log(log.Event{
		Timestamp:     time.Now(),
		Direction:     log.DirectionOut,
		Layer:         log.LayerWire,
		Category:      log.CategoryMessage,
		Channel:       ch,
		RemoteAddr:    dest,
		DeviceAddress: device,
		Message:       log.NewMessageEvent(cmd),
	})
	return nil
}

// HandlePacket decodes an inbound packet and passes it to the handler.
// A packet that fails to decode is logged and counted; it never stops the
// caller's receive loop.
func (d *Dispatcher) HandlePacket(ctx context.Context, p Packet) {
	handler, device := d.state()

	cmd, err := wire.DecodeCommand(p.Data)
	if err != nil {
		kind := wire.ErrorKind(err)
		d.metrics.DecodeError(p.Channel.String(), kind)
		d.logger.Log(log.Event{
			Timestamp:     time.Now(),
			ConnectionID:  p.ConnID,
			Direction:     log.DirectionIn,
			Layer:         log.LayerWire,
			Category:      log.CategoryError,
			Channel:       p.Channel,
			RemoteAddr:    p.RemoteAddr,
			DeviceAddress: device,
			Error: &log.ErrorEventData{
				Layer:   log.LayerWire,
				Message: err.Error(),
				Kind:    kind,
				Context: "decode",
			},
		})
		return
	}

	d.metrics.CommandReceived(p.Channel.String(), cmd.MessageType.String(), len(p.Data))
	d.logger.Log(log.Event{
		Timestamp:     time.Now(),
		ConnectionID:  p.ConnID,
		Direction:     log.DirectionIn,
		Layer:         log.LayerWire,
		Category:      log.CategoryMessage,
		Channel:       p.Channel,
		RemoteAddr:    p.RemoteAddr,
		DeviceAddress: device,
		Message:       log.NewMessageEvent(cmd),
	})

	if handler != nil {
		handler.HandleCommand(ctx, Inbound{
			Command:    cmd,
			Channel:    p.Channel,
			RemoteAddr: p.RemoteAddr,
			ConnID:     p.ConnID,
		})
	}
}

func channelFor(reliable bool) log.Channel {
	if reliable {
		return log.ChannelTCP
	}
	return log.ChannelUDP
}

// JoinDefaultPort appends wire.Port to addr when it has no port.
func JoinDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(wire.Port))
}
