package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hiqontrol/hiqnet-go/pkg/config"
	"github.com/hiqontrol/hiqnet-go/pkg/device"
	"github.com/hiqontrol/hiqnet-go/pkg/discovery"
	"github.com/hiqontrol/hiqnet-go/pkg/log"
	"github.com/hiqontrol/hiqnet-go/pkg/metrics"
	"github.com/hiqontrol/hiqnet-go/pkg/persistence"
	"github.com/hiqontrol/hiqnet-go/pkg/transport"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// Errors.
var (
	ErrAddressConflict    = errors.New("device address already in use")
	ErrAddressUnavailable = errors.New("no free device address found")
	ErrNotStarted         = errors.New("node not started")
	ErrAlreadyStarted     = errors.New("node already started")
	ErrUnknownPeer        = errors.New("unknown peer")
)

// Claim results recorded in metrics.
const (
	claimClaimed   = "claimed"
	claimConflict  = "conflict"
	claimExhausted = "exhausted"
)

// Option configures a Node.
type Option func(*Node)

// WithSender makes the node send through s instead of opening its own
// sockets. Inbound commands must then be fed to HandleCommand.
func WithSender(s transport.Sender) Option {
	return func(n *Node) { n.sender = s }
}

// WithProtocolLogger sets the protocol capture logger.
func WithProtocolLogger(l log.Logger) Option {
	return func(n *Node) { n.plog = log.OrNoop(l) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(n *Node) { n.metrics = m }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// WithStateStore persists claimed addresses to s.
func WithStateStore(s *persistence.NodeStateStore) Option {
	return func(n *Node) { n.store = s }
}

// WithAdvertiser publishes the node over DNS-SD.
func WithAdvertiser(a *discovery.Advertiser) Option {
	return func(n *Node) { n.advertiser = a }
}

// WithBackoff replaces the claim retry backoff.
func WithBackoff(b *Backoff) Option {
	return func(n *Node) { n.backoff = b }
}

// Node is a running HiQnet node.
type Node struct {
	cfg        config.Config
	dev        *device.Device
	dir        *discovery.Directory
	plog       log.Logger
	metrics    *metrics.Collector
	logger     *slog.Logger
	store      *persistence.NodeStateStore
	advertiser *discovery.Advertiser
	backoff    *Backoff

	sender     transport.Sender
	endpoint   *transport.Endpoint
	dispatcher *transport.Dispatcher
	announcer  *Announcer

	claimMu sync.Mutex

	mu       sync.Mutex
	started  bool
	claim    *claimState
	locating bool
	cancel   context.CancelFunc
}

// claimState tracks one REQADDR round.
type claimState struct {
	candidate uint16
	requests  map[uint16]bool
	conflict  chan struct{}
	once      sync.Once
}

func (c *claimState) signal() {
	c.once.Do(func() { close(c.conflict) })
}

// New creates a node for cfg. network is announced in DISCOINFO.
func New(cfg config.Config, network wire.NetworkInfo, opts ...Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	addr := cfg.Device.Address
	if addr == 0 {
		addr = device.NegotiateAddress()
	}
	dev, err := device.New(cfg.Device.Name, addr, network,
		device.WithKeepAlive(cfg.KeepAliveMillis()),
		device.WithManager(device.Manager{
			Name:            cfg.Device.Name,
			ClassName:       cfg.Device.ClassName,
			SerialNumber:    cfg.Device.SerialNumber,
			SoftwareVersion: cfg.Device.SoftwareVersion,
		}))
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:  cfg,
		dev:  dev,
		dir:  discovery.NewDirectory(),
		plog: log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	if n.backoff == nil {
		n.backoff = NewBackoff()
	}
	n.restoreName()
	return n, nil
}

// restoreName applies the device name persisted for this serial number.
func (n *Node) restoreName() {
	if n.store == nil {
		return
	}
	state, err := n.store.Load()
	if err != nil {
		n.logger.Warn("failed to load node state", "path", n.store.Path(), "error", err)
		return
	}
	if name, ok := state.NameFor(n.dev.Manager().SerialNumber); ok {
		n.dev.SetName(name)
	}
}

// Device returns the local device.
func (n *Node) Device() *device.Device { return n.dev }

// Directory returns the peer directory.
func (n *Node) Directory() *discovery.Directory { return n.dir }

// Endpoint returns the sockets opened by Start, or nil when a sender was
// injected.
func (n *Node) Endpoint() *transport.Endpoint { return n.endpoint }

// Locating reports whether a peer has switched our locate indicator on.
func (n *Node) Locating() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.locating
}

// Start opens the sockets, claims an address and starts announcing.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	n.started = true
	ctx, n.cancel = context.WithCancel(ctx)
	n.mu.Unlock()

	topts := []transport.Option{
		transport.WithLogger(n.plog),
		transport.WithMetrics(n.metrics),
		transport.WithMaxMessageSize(n.cfg.Network.MaxMessageSize),
		transport.WithDialTimeout(n.cfg.Network.DialTimeout),
		transport.WithBroadcast(n.cfg.Network.Broadcast),
	}

	if n.sender == nil {
		ep, err := transport.ListenEndpoint(n.cfg.Network.ListenHost, n.cfg.Network.Port, topts...)
		if err != nil {
			n.reset()
			return err
		}
		n.endpoint = ep
		n.sender = ep
	}
	n.dispatcher = transport.NewDispatcher(n.sender, append(topts, transport.WithHandler(n))...)
	n.dispatcher.SetDeviceAddress(n.dev.DeviceAddress())

	if n.endpoint != nil {
		if err := n.endpoint.Start(ctx, n.dispatcher.HandlePacket); err != nil {
			n.endpoint.Close()
			n.reset()
			return err
		}
		n.logger.Info("listening",
			"udp", n.endpoint.UDP.LocalAddr().String(),
			"tcp", n.endpoint.TCP.Addr().String())
	}

	if err := n.ClaimAddress(ctx); err != nil {
		if n.endpoint != nil {
			n.endpoint.Close()
		}
		n.reset()
		return err
	}

	announcer := NewAnnouncer(n.cfg.Node.KeepAlive, n.Announce, n.expirePeers)
	n.mu.Lock()
	n.announcer = announcer
	n.mu.Unlock()
	announcer.Start(ctx)

	if n.advertiser != nil {
		if err := n.advertiser.Advertise(n.nodeInfo()); err != nil {
			n.logger.Warn("DNS-SD advertisement failed", "error", err)
		}
	}
	return nil
}

func (n *Node) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancel()
	n.started = false
	n.release()
}

// release forgets the state of one run so the next Start opens fresh
// sockets. An injected sender is kept. Callers hold n.mu.
func (n *Node) release() {
	if n.endpoint != nil {
		n.sender = nil
		n.endpoint = nil
	}
	n.announcer = nil
}

// Stop says goodbye and shuts the node down.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return ErrNotStarted
	}
	n.started = false
	n.mu.Unlock()

	var result error
	if err := n.dispatcher.Send(ctx, n.dev.Goodbye(), ""); err != nil {
		result = multierror.Append(result, fmt.Errorf("goodbye: %w", err))
	}
	if n.announcer != nil {
		n.announcer.Stop()
	}
	if n.advertiser != nil {
		n.advertiser.Stop()
	}
	n.cancel()

	n.mu.Lock()
	ep := n.endpoint
	n.release()
	n.mu.Unlock()
	if ep != nil {
		if err := ep.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// ClaimAddress finds a device address nobody else holds and assigns it to
// the device. A fixed address from the configuration is checked but never
// replaced.
func (n *Node) ClaimAddress(ctx context.Context) error {
	n.claimMu.Lock()
	defer n.claimMu.Unlock()

	fixed := n.cfg.Device.Address != 0
	previous := n.dev.DeviceAddress()
	candidate := n.initialCandidate()
	n.backoff.Reset()

	for attempt := 1; attempt <= n.cfg.Node.ClaimAttempts; attempt++ {
		conflict, err := n.tryClaim(ctx, candidate)
		if err != nil {
			return err
		}
		if !conflict {
			n.metrics.AddressClaim(claimClaimed)
			n.commitAddress(previous, candidate)
			return nil
		}

		n.metrics.AddressClaim(claimConflict)
		n.logState(log.StateEntityAddress, strconv.Itoa(int(candidate)), "CONFLICT", "address in use")
		n.logger.Warn("device address in use", "address", candidate, "attempt", attempt)
		if fixed {
			return fmt.Errorf("%w: %d", ErrAddressConflict, candidate)
		}

		select {
		case <-time.After(n.backoff.Next()):
		case <-ctx.Done():
			return ctx.Err()
		}
		candidate = n.nextCandidate(candidate)
	}

	n.metrics.AddressClaim(claimExhausted)
	return fmt.Errorf("%w after %d attempts", ErrAddressUnavailable, n.cfg.Node.ClaimAttempts)
}

// initialCandidate prefers the configured address, then the address
// persisted for this serial number, then the random one from New.
func (n *Node) initialCandidate() uint16 {
	if n.cfg.Device.Address != 0 {
		return n.cfg.Device.Address
	}
	if n.store != nil {
		state, err := n.store.Load()
		if err != nil {
			n.logger.Warn("failed to load node state", "path", n.store.Path(), "error", err)
		} else if addr, ok := state.AddressFor(n.dev.Manager().SerialNumber); ok {
			return addr
		}
	}
	return n.dev.DeviceAddress()
}

// nextCandidate picks a random address that differs from last and is not
// held by a known peer.
func (n *Node) nextCandidate(last uint16) uint16 {
	for {
		c := device.NegotiateAddress()
		if c == last {
			continue
		}
		if _, known := n.dir.Lookup(c); known {
			continue
		}
		return c
	}
}

// tryClaim runs one REQADDR round for candidate and reports whether a
// conflict was seen.
func (n *Node) tryClaim(ctx context.Context, candidate uint16) (bool, error) {
	serial := n.dev.Manager().SerialNumber
	if p, ok := n.dir.Lookup(candidate); ok && p.SerialNumber != serial {
		return true, nil
	}

	if err := n.dev.SetAddress(candidate); err != nil {
		return false, err
	}
	n.dispatcher.SetDeviceAddress(candidate)

	cmd, err := n.dev.RequestAddress(candidate)
	if err != nil {
		return false, err
	}
	cs := &claimState{
		candidate: candidate,
		requests:  map[uint16]bool{cmd.SequenceNumber: true},
		conflict:  make(chan struct{}),
	}
	n.mu.Lock()
	n.claim = cs
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.claim = nil
		n.mu.Unlock()
	}()

	if err := n.dispatcher.Send(ctx, cmd, ""); err != nil {
		return false, err
	}

	timer := time.NewTimer(n.cfg.Node.ClaimTimeout)
	defer timer.Stop()
	select {
	case <-cs.conflict:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (n *Node) commitAddress(previous, addr uint16) {
	from := ""
	if previous != addr {
		from = strconv.Itoa(int(previous))
	}
	n.logState(log.StateEntityAddress, from, strconv.Itoa(int(addr)), "claimed")
	n.logger.Info("device address claimed", "address", addr)
	n.saveState()
	if n.advertiser != nil {
		if err := n.advertiser.Update(n.nodeInfo()); err != nil && !errors.Is(err, discovery.ErrNotAdvertising) {
			n.logger.Warn("DNS-SD update failed", "error", err)
		}
	}
}

// signalConflict ends the running claim round if it is for addr.
func (n *Node) signalConflict(addr uint16) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.claim == nil || n.claim.candidate != addr {
		return false
	}
	n.claim.signal()
	return true
}

func (n *Node) claiming() *claimState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.claim
}

// SetName renames the device, persists it and refreshes the advertisement.
func (n *Node) SetName(name string) {
	n.dev.SetName(name)
	n.saveState()
	if n.advertiser != nil {
		if err := n.advertiser.Update(n.nodeInfo()); err != nil && !errors.Is(err, discovery.ErrNotAdvertising) {
			n.logger.Warn("DNS-SD update failed", "error", err)
		}
	}
}

func (n *Node) saveState() {
	if n.store == nil {
		return
	}
	m := n.dev.Manager()
	err := n.store.Save(&persistence.NodeState{
		DeviceName:    m.Name,
		DeviceAddress: n.dev.DeviceAddress(),
		SerialNumber:  m.SerialNumber,
		ClaimedAt:     time.Now(),
	})
	if err != nil {
		n.logger.Warn("failed to save node state", "path", n.store.Path(), "error", err)
	}
}

func (n *Node) nodeInfo() *discovery.NodeInfo {
	m := n.dev.Manager()
	port := uint16(n.cfg.Network.Port)
	if n.endpoint != nil {
		if a, ok := n.endpoint.UDP.LocalAddr().(*net.UDPAddr); ok {
			port = uint16(a.Port)
		}
	}
	return &discovery.NodeInfo{
		Address:         n.dev.DeviceAddress(),
		Port:            port,
		SerialNumber:    m.SerialNumber,
		Name:            m.Name,
		ClassName:       m.ClassName,
		SoftwareVersion: m.SoftwareVersion,
	}
}

func (n *Node) logState(entity log.StateEntity, from, to, reason string) {
	n.plog.Log(log.Event{
		Timestamp:     time.Now(),
		Layer:         log.LayerDevice,
		Category:      log.CategoryState,
		DeviceAddress: n.dev.DeviceAddress(),
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}
