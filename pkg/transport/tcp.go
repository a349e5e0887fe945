package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hiqontrol/hiqnet-go/pkg/log"
)

var noDeadline time.Time

// ErrChannelClosed is returned by sends on a closed channel.
var ErrChannelClosed = errors.New("channel closed")

// TCPChannel is the reliable stream channel. It accepts inbound
// connections and keeps one outbound connection per destination; replies
// to a peer reuse the connection it arrived on.
type TCPChannel struct {
	listener net.Listener
	opts     options
	handler  PacketHandler

	conns   map[string]*streamConn
	connsMu sync.Mutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type streamConn struct {
	conn   net.Conn
	framer *Framer
	id     string
	remote string

	closeOnce sync.Once
}

func (c *streamConn) close() {
	c.closeOnce.Do(func() { c.conn.Close() })
}

// ListenTCP opens the stream channel on addr (e.g. ":3804").
func ListenTCP(addr string, opts ...Option) (*TCPChannel, error) {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return &TCPChannel{
		listener: ln,
		opts:     applyOptions(opts),
		conns:    make(map[string]*streamConn),
	}, nil
}

// Addr returns the listen address.
func (t *TCPChannel) Addr() net.Addr {
	return t.listener.Addr()
}

// Start begins accepting connections. Frames from every connection are
// passed to handler.
func (t *TCPChannel) Start(ctx context.Context, handler PacketHandler) error {
	if !t.running.CompareAndSwap(false, true) {
		return fmt.Errorf("tcp channel already running")
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.handler = handler

	t.wg.Add(1)
	go t.acceptLoop()
	return nil
}

// ConnectionCount returns the number of open connections.
func (t *TCPChannel) ConnectionCount() int {
	t.connsMu.Lock()
	defer t.connsMu.Unlock()
	return len(t.conns)
}

// Send writes data on the connection to dest, dialing if none is open.
// A failed write closes the connection; the next send redials.
func (t *TCPChannel) Send(ctx context.Context, data []byte, dest string) error {
	if !t.running.Load() {
		return ErrChannelClosed
	}
	c, err := t.connFor(ctx, dest)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(noDeadline)
	}
	if err := c.framer.WriteFrame(data); err != nil {
		c.close()
		return fmt.Errorf("send to %s: %w", dest, err)
	}
	return nil
}

func (t *TCPChannel) connFor(ctx context.Context, dest string) (*streamConn, error) {
	t.connsMu.Lock()
	c, ok := t.conns[dest]
	t.connsMu.Unlock()
	if ok {
		return c, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.opts.dialTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp4", dest)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", dest, err)
	}

	c = t.track(conn, dest)
	if c == nil {
		conn.Close()
		return nil, ErrChannelClosed
	}
	return c, nil
}

// track registers conn under key and starts its read loop. If another
// goroutine registered the same key first, that connection wins.
func (t *TCPChannel) track(conn net.Conn, key string) *streamConn {
	c := &streamConn{
		conn:   conn,
		framer: NewFramer(conn),
		id:     uuid.New().String(),
		remote: key,
	}
	c.framer.SetMaxMessageSize(t.opts.maxMessageSize)
	c.framer.SetLogger(t.opts.logger, c.id, key)

	t.connsMu.Lock()
	if !t.running.Load() {
		t.connsMu.Unlock()
		return nil
	}
	if existing, ok := t.conns[key]; ok {
		t.connsMu.Unlock()
		conn.Close()
		return existing
	}
	t.conns[key] = c
	t.wg.Add(1)
	t.connsMu.Unlock()

	t.opts.metrics.ConnectionOpened()
	t.logState(c, "", "CONNECTED")
	go t.readLoop(c)
	return c
}

func (t *TCPChannel) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if !t.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			t.opts.metrics.ReceiveError(log.ChannelTCP.String())
			t.opts.logger.Log(log.Event{
				Timestamp: time.Now(),
				Layer:     log.LayerTransport,
				Category:  log.CategoryError,
				Channel:   log.ChannelTCP,
				Error: &log.ErrorEventData{
					Layer:   log.LayerTransport,
					Message: err.Error(),
					Context: "accept",
				},
			})
			continue
		}
		if t.track(conn, conn.RemoteAddr().String()) == nil {
			conn.Close()
		}
	}
}

func (t *TCPChannel) readLoop(c *streamConn) {
	defer t.wg.Done()
	defer t.untrack(c)

	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) && t.running.Load() {
				t.opts.logger.Log(log.Event{
					Timestamp:    time.Now(),
					ConnectionID: c.id,
					Direction:    log.DirectionIn,
					Layer:        log.LayerTransport,
					Category:     log.CategoryError,
					Channel:      log.ChannelTCP,
					RemoteAddr:   c.remote,
					Error: &log.ErrorEventData{
						Layer:   log.LayerTransport,
						Message: err.Error(),
						Kind:    "framing",
						Context: "read",
					},
				})
				t.opts.metrics.DecodeError(log.ChannelTCP.String(), "framing")
			}
			return
		}
		if t.handler != nil {
			t.handler(t.ctx, Packet{
				Data:       data,
				Channel:    log.ChannelTCP,
				RemoteAddr: c.remote,
				ConnID:     c.id,
			})
		}
	}
}

func (t *TCPChannel) untrack(c *streamConn) {
	c.close()
	t.connsMu.Lock()
	if t.conns[c.remote] == c {
		delete(t.conns, c.remote)
	}
	t.connsMu.Unlock()
	t.opts.metrics.ConnectionClosed()
	t.logState(c, "CONNECTED", "DISCONNECTED")
}

func (t *TCPChannel) logState(c *streamConn, from, to string) {
	t.opts.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		Channel:      log.ChannelTCP,
		RemoteAddr:   c.remote,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from,
			NewState: to,
		},
	})
}

// Close stops accepting, closes every connection and waits for the read
// loops to finish.
func (t *TCPChannel) Close() error {
	wasRunning := t.running.Swap(false)
	err := t.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if !wasRunning {
		return err
	}
	t.cancel()

	t.connsMu.Lock()
	for _, c := range t.conns {
		c.close()
	}
	t.connsMu.Unlock()

	t.wg.Wait()
	return err
}
