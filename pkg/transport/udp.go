package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
)

// UDPConnID is the connection id used in log events for datagrams.
const UDPConnID = "udp"

// ReadRetryDelay is the pause after a failed datagram read.
const ReadRetryDelay = 50 * time.Millisecond

// UDPChannel is the unreliable datagram channel. Go datagram sockets have
// SO_BROADCAST set, so broadcast destinations work without extra setup.
type UDPChannel struct {
	conn   *net.UDPConn
	opts   options
	closed chan struct{}
}

// ListenUDP opens the datagram channel on addr (e.g. ":3804").
func ListenUDP(addr string, opts ...Option) (*UDPChannel, error) {
	laddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	return &UDPChannel{conn: conn, opts: applyOptions(opts), closed: make(chan struct{})}, nil
}

// LocalAddr returns the bound address.
func (u *UDPChannel) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// WriteTo sends one datagram to dest ("host:port").
func (u *UDPChannel) WriteTo(ctx context.Context, data []byte, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raddr, err := net.ResolveUDPAddr("udp4", dest)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dest, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = u.conn.SetWriteDeadline(deadline)
		defer u.conn.SetWriteDeadline(noDeadline)
	}
	if _, err := u.conn.WriteToUDP(data, raddr); err != nil {
		return fmt.Errorf("write udp %s: %w", dest, err)
	}
	u.opts.logger.Log(frameEvent(data, log.DirectionOut, log.ChannelUDP, UDPConnID, dest))
	return nil
}

// Serve reads datagrams and passes each to handler until ctx is done or
// the channel is closed. Each datagram is one command. Read failures are
// logged and counted, and reading resumes after ReadRetryDelay.
func (u *UDPChannel) Serve(ctx context.Context, handler PacketHandler) {
	stop := context.AfterFunc(ctx, func() { u.Close() })
	defer stop()

	buf := make([]byte, u.opts.maxMessageSize)
	for {
		n, raddr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			u.readFailed(err)
			select {
			case <-time.After(ReadRetryDelay):
				continue
			case <-u.closed:
				return
			}
		}
		data := append([]byte(nil), buf[:n]...)
		remote := raddr.String()
		u.opts.logger.Log(frameEvent(data, log.DirectionIn, log.ChannelUDP, UDPConnID, remote))
		handler(ctx, Packet{
			Data:       data,
			Channel:    log.ChannelUDP,
			RemoteAddr: remote,
			ConnID:     UDPConnID,
		})
	}
}

func (u *UDPChannel) readFailed(err error) {
	u.opts.metrics.ReceiveError(log.ChannelUDP.String())
	u.opts.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: UDPConnID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		Channel:      log.ChannelUDP,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: "read",
		},
	})
}

// Close closes the socket. It is safe to call more than once.
func (u *UDPChannel) Close() error {
	select {
	case <-u.closed:
		return nil
	default:
		close(u.closed)
	}
	return u.conn.Close()
}
