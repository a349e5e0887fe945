package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// Endpoint owns both HiQnet channels on one port: UDP for ordinary and
// broadcast traffic, TCP for guaranteed traffic.
type Endpoint struct {
	UDP *UDPChannel
	TCP *TCPChannel

	wg sync.WaitGroup
}

// ListenEndpoint opens both channels on host:port. An empty host binds
// all interfaces; port 0 picks an ephemeral port for each channel.
func ListenEndpoint(host string, port int, opts ...Option) (*Endpoint, error) {
	if port < 0 {
		port = wire.Port
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	udp, err := ListenUDP(addr, opts...)
	if err != nil {
		return nil, err
	}
	tcp, err := ListenTCP(addr, opts...)
	if err != nil {
		udp.Close()
		return nil, err
	}
	return &Endpoint{UDP: udp, TCP: tcp}, nil
}

// Start begins serving both channels in the background. Packets from
// either channel go to handler.
func (e *Endpoint) Start(ctx context.Context, handler PacketHandler) error {
	if err := e.TCP.Start(ctx, handler); err != nil {
		return err
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.UDP.Serve(ctx, handler)
	}()
	return nil
}

// Send implements Sender.
func (e *Endpoint) Send(ctx context.Context, data []byte, dest string, reliable bool) error {
	if reliable {
		return e.TCP.Send(ctx, data, dest)
	}
	return e.UDP.WriteTo(ctx, data, dest)
}

// Close shuts down both channels.
func (e *Endpoint) Close() error {
	var result error
	if err := e.TCP.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("tcp: %w", err))
	}
	if err := e.UDP.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("udp: %w", err))
	}
	e.wg.Wait()
	return result
}
