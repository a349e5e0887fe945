package node

import (
	"context"
	"io"
	"log/slog"
	"net/netip"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hiqontrol/hiqnet-go/pkg/config"
	"github.com/hiqontrol/hiqnet-go/pkg/log"
	"github.com/hiqontrol/hiqnet-go/pkg/persistence"
	"github.com/hiqontrol/hiqnet-go/pkg/transport"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const peerRemote = "192.168.1.9:3804"

type captured struct {
	cmd      *wire.Command
	dest     string
	reliable bool
}

// fakeNet decodes everything the node sends. onSend runs after each send
// and may feed replies back into the node.
type fakeNet struct {
	mu     sync.Mutex
	sent   []captured
	onSend func(c captured)
}

func (f *fakeNet) Send(_ context.Context, data []byte, dest string, reliable bool) error {
	cmd, err := wire.DecodeCommand(data)
	if err != nil {
		return err
	}
	c := captured{cmd: cmd, dest: dest, reliable: reliable}

	f.mu.Lock()
	f.sent = append(f.sent, c)
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(c)
	}
	return nil
}

func (f *fakeNet) ofType(mt wire.MessageType) []captured {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []captured
	for _, c := range f.sent {
		if c.cmd.MessageType == mt {
			out = append(out, c)
		}
	}
	return out
}

func testNetwork() *wire.IPNetworkInfo {
	return &wire.IPNetworkInfo{
		IP:         netip.MustParseAddr("192.168.1.5"),
		SubnetMask: netip.MustParseAddr("255.255.255.0"),
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Device.Name = "FOH"
	cfg.Device.SerialNumber = "SI-0001"
	cfg.Node.ClaimTimeout = 20 * time.Millisecond
	cfg.Node.ClaimAttempts = 3
	cfg.Node.KeepAlive = time.Minute
	return cfg
}

func newTestNode(t *testing.T, cfg config.Config, fn *fakeNet, opts ...Option) *Node {
	t.Helper()
	opts = append([]Option{
		WithSender(fn),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithBackoff(NewBackoffWithConfig(BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond, Jitter: -1})),
	}, opts...)
	n, err := New(cfg, testNetwork(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Stop(context.Background()) })
	return n
}

// inbound round-trips cmd through the codec so decoded payloads are set.
func inbound(t *testing.T, cmd *wire.Command, ch log.Channel) transport.Inbound {
	t.Helper()
	data, err := cmd.Encode()
	require.NoError(t, err)
	dec, err := wire.DecodeCommand(data)
	require.NoError(t, err)
	return transport.Inbound{Command: dec, Channel: ch, RemoteAddr: peerRemote, ConnID: transport.UDPConnID}
}

func peerCommand(src uint16, dst wire.Address, mt wire.MessageType) *wire.Command {
	return wire.NewCommand(&wire.Sequence{}, wire.DeviceAddress(src), dst, mt)
}

func peerDiscoInfo(t *testing.T, src uint16, serial string, info bool) *wire.Command {
	t.Helper()
	cmd := peerCommand(src, wire.BroadcastAddress(), wire.MsgDiscoInfo)
	require.NoError(t, cmd.EncodeDiscoInfo(wire.NewDiscoInfo(src, serial, testNetwork()), info))
	return cmd
}

func TestStartClaimsAddress(t *testing.T) {
	fn := &fakeNet{}
	n := newTestNode(t, testConfig(), fn)

	require.NoError(t, n.Start(context.Background()))

	reqs := fn.ofType(wire.MsgRequestAddress)
	require.Len(t, reqs, 1)
	assert.Equal(t, "255.255.255.255:3804", reqs[0].dest)
	assert.False(t, reqs[0].reliable)
	requested, err := wire.DecodeRequestAddress(reqs[0].cmd.Payload)
	require.NoError(t, err)
	assert.Equal(t, requested, n.Device().DeviceAddress())
	assert.Equal(t, requested, reqs[0].cmd.Source.Device)

	assert.Eventually(t, func() bool {
		return len(fn.ofType(wire.MsgDiscoInfo)) > 0
	}, time.Second, 5*time.Millisecond)
	announce := fn.ofType(wire.MsgDiscoInfo)[0]
	assert.False(t, announce.cmd.IsQuery())
	require.NotNil(t, announce.cmd.DiscoInfo)
	assert.Equal(t, "SI-0001", announce.cmd.DiscoInfo.SerialNumber)
	assert.Equal(t, uint16(60000), announce.cmd.DiscoInfo.KeepAliveMillis)

	assert.ErrorIs(t, n.Start(context.Background()), ErrAlreadyStarted)
}

func TestClaimConflictPicksNewAddress(t *testing.T) {
	fn := &fakeNet{}
	n := newTestNode(t, testConfig(), fn)

	var once sync.Once
	fn.onSend = func(c captured) {
		if c.cmd.MessageType != wire.MsgRequestAddress {
			return
		}
		once.Do(func() {
			used := peerCommand(c.cmd.Source.Device, c.cmd.Source, wire.MsgAddressUsed)
			n.HandleCommand(context.Background(), inbound(t, used, log.ChannelUDP))
		})
	}

	require.NoError(t, n.Start(context.Background()))

	reqs := fn.ofType(wire.MsgRequestAddress)
	require.Len(t, reqs, 2)
	first, err := wire.DecodeRequestAddress(reqs[0].cmd.Payload)
	require.NoError(t, err)
	second, err := wire.DecodeRequestAddress(reqs[1].cmd.Payload)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, n.Device().DeviceAddress())
}

func TestFixedAddressConflict(t *testing.T) {
	cfg := testConfig()
	cfg.Device.Address = 1619
	fn := &fakeNet{}
	n := newTestNode(t, cfg, fn)

	fn.onSend = func(c captured) {
		if c.cmd.MessageType == wire.MsgRequestAddress {
			used := peerCommand(1619, c.cmd.Source, wire.MsgAddressUsed)
			n.HandleCommand(context.Background(), inbound(t, used, log.ChannelUDP))
		}
	}

	err := n.Start(context.Background())
	require.ErrorIs(t, err, ErrAddressConflict)
	assert.Len(t, fn.ofType(wire.MsgRequestAddress), 1)
	assert.ErrorIs(t, n.Stop(context.Background()), ErrNotStarted)
}

func TestClaimExhausted(t *testing.T) {
	fn := &fakeNet{}
	n := newTestNode(t, testConfig(), fn)

	fn.onSend = func(c captured) {
		if c.cmd.MessageType == wire.MsgRequestAddress {
			used := peerCommand(c.cmd.Source.Device, c.cmd.Source, wire.MsgAddressUsed)
			n.HandleCommand(context.Background(), inbound(t, used, log.ChannelUDP))
		}
	}

	err := n.Start(context.Background())
	require.ErrorIs(t, err, ErrAddressUnavailable)
	assert.Len(t, fn.ofType(wire.MsgRequestAddress), 3)
}

func TestCompetingRequestIsConflict(t *testing.T) {
	fn := &fakeNet{}
	n := newTestNode(t, testConfig(), fn)

	var once sync.Once
	fn.onSend = func(c captured) {
		if c.cmd.MessageType != wire.MsgRequestAddress {
			return
		}
		once.Do(func() {
			other := peerCommand(c.cmd.Source.Device, wire.BroadcastAddress(), wire.MsgRequestAddress)
			other.SequenceNumber = c.cmd.SequenceNumber + 100
			require.NoError(t, other.EncodeRequestAddress(c.cmd.Source.Device))
			n.HandleCommand(context.Background(), inbound(t, other, log.ChannelUDP))
		})
	}

	require.NoError(t, n.Start(context.Background()))
	assert.Len(t, fn.ofType(wire.MsgRequestAddress), 2)
}

func TestOwnRequestEchoIgnored(t *testing.T) {
	fn := &fakeNet{}
	n := newTestNode(t, testConfig(), fn)

	fn.onSend = func(c captured) {
		if c.cmd.MessageType == wire.MsgRequestAddress {
			n.HandleCommand(context.Background(), inbound(t, c.cmd, log.ChannelUDP))
		}
	}

	require.NoError(t, n.Start(context.Background()))
	assert.Len(t, fn.ofType(wire.MsgRequestAddress), 1)
	assert.Empty(t, fn.ofType(wire.MsgAddressUsed))
}

func TestKnownPeerAddressSkipped(t *testing.T) {
	cfg := testConfig()
	cfg.Device.Address = 1619
	fn := &fakeNet{}
	n := newTestNode(t, cfg, fn)
	n.Directory().Observe(wire.NewDiscoInfo(1619, "SI-0009", testNetwork()), peerRemote)

	err := n.Start(context.Background())
	require.ErrorIs(t, err, ErrAddressConflict)
	assert.Empty(t, fn.ofType(wire.MsgRequestAddress))
}

func startFixed(t *testing.T, fn *fakeNet, opts ...Option) *Node {
	t.Helper()
	cfg := testConfig()
	cfg.Device.Address = 1619
	n := newTestNode(t, cfg, fn, opts...)
	require.NoError(t, n.Start(context.Background()))
	return n
}

func TestRequestForHeldAddress(t *testing.T) {
	fn := &fakeNet{}
	n := startFixed(t, fn)

	req := peerCommand(1619, wire.BroadcastAddress(), wire.MsgRequestAddress)
	require.NoError(t, req.EncodeRequestAddress(1619))
	n.HandleCommand(context.Background(), inbound(t, req, log.ChannelUDP))

	used := fn.ofType(wire.MsgAddressUsed)
	require.Len(t, used, 1)
	assert.Equal(t, peerRemote, used[0].dest)
	assert.Equal(t, uint16(1619), used[0].cmd.Source.Device)

	other := peerCommand(2000, wire.BroadcastAddress(), wire.MsgRequestAddress)
	require.NoError(t, other.EncodeRequestAddress(2000))
	n.HandleCommand(context.Background(), inbound(t, other, log.ChannelUDP))
	assert.Len(t, fn.ofType(wire.MsgAddressUsed), 1)
}

func TestDiscoInfoQuery(t *testing.T) {
	fn := &fakeNet{}
	n := startFixed(t, fn)
	before := len(fn.ofType(wire.MsgDiscoInfo))

	n.HandleCommand(context.Background(), inbound(t, peerDiscoInfo(t, 2000, "SI-0002", false), log.ChannelUDP))

	p, ok := n.Directory().Lookup(2000)
	require.True(t, ok)
	assert.Equal(t, "SI-0002", p.SerialNumber)
	assert.Equal(t, peerRemote, p.RemoteAddr)

	replies := fn.ofType(wire.MsgDiscoInfo)[before:]
	require.NotEmpty(t, replies)
	var reply *captured
	for i := range replies {
		if replies[i].dest == peerRemote {
			reply = &replies[i]
		}
	}
	require.NotNil(t, reply)
	assert.False(t, reply.reliable)
	assert.False(t, reply.cmd.IsQuery())
	assert.Equal(t, uint16(2000), reply.cmd.Destination.Device)
	assert.Equal(t, uint16(1619), reply.cmd.DiscoInfo.DeviceAddress)
}

func TestDiscoInfoQueryOnStream(t *testing.T) {
	fn := &fakeNet{}
	n := startFixed(t, fn)

	n.HandleCommand(context.Background(), inbound(t, peerDiscoInfo(t, 2000, "SI-0002", false), log.ChannelTCP))

	var found bool
	for _, c := range fn.ofType(wire.MsgDiscoInfo) {
		if c.dest == peerRemote {
			found = true
			assert.True(t, c.reliable)
			assert.True(t, c.cmd.Flags.Guaranteed())
		}
	}
	assert.True(t, found)
}

func TestDiscoInfoAnnouncementNoReply(t *testing.T) {
	fn := &fakeNet{}
	n := startFixed(t, fn)

	n.HandleCommand(context.Background(), inbound(t, peerDiscoInfo(t, 2000, "SI-0002", true), log.ChannelUDP))

	_, ok := n.Directory().Lookup(2000)
	assert.True(t, ok)
	for _, c := range fn.ofType(wire.MsgDiscoInfo) {
		assert.NotEqual(t, peerRemote, c.dest)
	}
}

func TestDiscoInfoWithOurAddress(t *testing.T) {
	fn := &fakeNet{}
	n := startFixed(t, fn)

	n.HandleCommand(context.Background(), inbound(t, peerDiscoInfo(t, 1619, "SI-0009", true), log.ChannelUDP))

	used := fn.ofType(wire.MsgAddressUsed)
	require.Len(t, used, 1)
	assert.Equal(t, peerRemote, used[0].dest)
}

func TestDiscoInfoOwnSerialIgnored(t *testing.T) {
	fn := &fakeNet{}
	n := startFixed(t, fn)

	n.HandleCommand(context.Background(), inbound(t, peerDiscoInfo(t, 1619, "SI-0001", false), log.ChannelUDP))

	assert.Equal(t, 0, n.Directory().Len())
	assert.Empty(t, fn.ofType(wire.MsgAddressUsed))
}

func TestCommandForOtherDeviceIgnored(t *testing.T) {
	fn := &fakeNet{}
	n := startFixed(t, fn)

	cmd := peerCommand(2000, wire.DeviceAddress(3000), wire.MsgDiscoInfo)
	require.NoError(t, cmd.EncodeDiscoInfo(wire.NewDiscoInfo(2000, "SI-0002", testNetwork()), false))
	n.HandleCommand(context.Background(), inbound(t, cmd, log.ChannelUDP))

	assert.Equal(t, 0, n.Directory().Len())
}

func TestGoodbyeRemovesPeer(t *testing.T) {
	fn := &fakeNet{}
	n := startFixed(t, fn)
	n.HandleCommand(context.Background(), inbound(t, peerDiscoInfo(t, 2000, "SI-0002", true), log.ChannelUDP))
	require.Equal(t, 1, n.Directory().Len())

	bye := peerCommand(2000, wire.BroadcastAddress(), wire.MsgGoodbye)
	bye.EncodeGoodbye(2000)
	n.HandleCommand(context.Background(), inbound(t, bye, log.ChannelUDP))

	assert.Equal(t, 0, n.Directory().Len())
}

func TestLocateCommand(t *testing.T) {
	fn := &fakeNet{}
	n := startFixed(t, fn)

	locate := func(on bool, serial string) {
		cmd := peerCommand(2000, wire.DeviceAddress(1619), wire.MsgLocate)
		if on {
			require.NoError(t, cmd.LocateOn([]byte(serial)))
		} else {
			require.NoError(t, cmd.LocateOff([]byte(serial)))
		}
		n.HandleCommand(context.Background(), inbound(t, cmd, log.ChannelUDP))
	}

	locate(true, "SI-0002")
	assert.False(t, n.Locating())

	locate(true, "SI-0001")
	assert.True(t, n.Locating())

	locate(false, "")
	assert.False(t, n.Locating())
}

func TestOperationsRequireStart(t *testing.T) {
	n := newTestNode(t, testConfig(), &fakeNet{})

	assert.ErrorIs(t, n.Announce(context.Background()), ErrNotStarted)
	assert.ErrorIs(t, n.Discover(context.Background()), ErrNotStarted)
	assert.ErrorIs(t, n.Locate(context.Background(), 2000, true), ErrNotStarted)
	_, err := n.Hello(context.Background(), 2000)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestPeerOperations(t *testing.T) {
	fn := &fakeNet{}
	n := startFixed(t, fn)
	ctx := context.Background()

	require.ErrorIs(t, n.Locate(ctx, 2000, true), ErrUnknownPeer)

	n.HandleCommand(ctx, inbound(t, peerDiscoInfo(t, 2000, "SI-0002", true), log.ChannelUDP))

	require.NoError(t, n.Locate(ctx, 2000, true))
	loc := fn.ofType(wire.MsgLocate)
	require.Len(t, loc, 1)
	assert.Equal(t, peerRemote, loc[0].dest)
	payload, err := wire.DecodeLocate(loc[0].cmd.Payload)
	require.NoError(t, err)
	assert.True(t, payload.On())
	assert.Equal(t, []byte("SI-0002"), payload.SerialNumber)

	sn, err := n.Hello(ctx, 2000)
	require.NoError(t, err)
	hello := fn.ofType(wire.MsgHello)
	require.Len(t, hello, 1)
	assert.True(t, hello[0].reliable)
	h, err := wire.DecodeHello(hello[0].cmd.Payload)
	require.NoError(t, err)
	assert.Equal(t, sn, h.SessionNumber)

	require.NoError(t, n.GetVDList(ctx, 2000, "main"))
	vd := fn.ofType(wire.MsgGetVDList)
	require.Len(t, vd, 1)
	assert.Equal(t, "main", wire.DecodeGetVDList(vd[0].cmd.Payload))

	require.NoError(t, n.Discover(ctx))
	var query bool
	for _, c := range fn.ofType(wire.MsgDiscoInfo) {
		if c.cmd.IsQuery() && c.dest == "255.255.255.255:3804" {
			query = true
		}
	}
	assert.True(t, query)
	assert.Len(t, n.Peers(), 1)
}

func TestStopSendsGoodbye(t *testing.T) {
	fn := &fakeNet{}
	n := startFixed(t, fn)

	require.NoError(t, n.Stop(context.Background()))

	bye := fn.ofType(wire.MsgGoodbye)
	require.Len(t, bye, 1)
	assert.Equal(t, "255.255.255.255:3804", bye[0].dest)
	addr, err := wire.DecodeGoodbye(bye[0].cmd.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint16(1619), addr)

	assert.ErrorIs(t, n.Stop(context.Background()), ErrNotStarted)
}

func TestPersistedAddressReused(t *testing.T) {
	store := persistence.NewNodeStateStore(filepath.Join(t.TempDir(), "state.yaml"))
	require.NoError(t, store.Save(&persistence.NodeState{
		DeviceName:    "FOH",
		DeviceAddress: 4242,
		SerialNumber:  "SI-0001",
	}))

	fn := &fakeNet{}
	n := newTestNode(t, testConfig(), fn, WithStateStore(store))
	require.NoError(t, n.Start(context.Background()))

	assert.Equal(t, uint16(4242), n.Device().DeviceAddress())
	state, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, uint16(4242), state.DeviceAddress)
}

func TestPersistedAddressOtherSerial(t *testing.T) {
	store := persistence.NewNodeStateStore(filepath.Join(t.TempDir(), "state.yaml"))
	require.NoError(t, store.Save(&persistence.NodeState{
		DeviceAddress: 4242,
		SerialNumber:  "SI-0099",
	}))

	cfg := testConfig()
	cfg.Device.Address = 1619
	fn := &fakeNet{}
	n := newTestNode(t, cfg, fn, WithStateStore(store))
	require.NoError(t, n.Start(context.Background()))

	assert.Equal(t, uint16(1619), n.Device().DeviceAddress())
	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "SI-0001", state.SerialNumber)
}

func TestPersistedNameRestored(t *testing.T) {
	store := persistence.NewNodeStateStore(filepath.Join(t.TempDir(), "state.yaml"))
	cfg := testConfig()
	cfg.Device.Address = 1619

	first := newTestNode(t, cfg, &fakeNet{}, WithStateStore(store))
	require.NoError(t, first.Start(context.Background()))
	first.SetName("Renamed")
	require.NoError(t, first.Stop(context.Background()))

	second := newTestNode(t, cfg, &fakeNet{}, WithStateStore(store))
	assert.Equal(t, "Renamed", second.Device().Manager().Name)
	assert.Equal(t, "SI-0001", second.Device().Manager().SerialNumber)
}

func TestPersistedNameOtherSerial(t *testing.T) {
	store := persistence.NewNodeStateStore(filepath.Join(t.TempDir(), "state.yaml"))
	require.NoError(t, store.Save(&persistence.NodeState{
		DeviceName:   "Monitor",
		SerialNumber: "SI-0099",
	}))

	n := newTestNode(t, testConfig(), &fakeNet{}, WithStateStore(store))
	assert.Equal(t, "FOH", n.Device().Manager().Name)
}

func TestRestartWithInjectedSender(t *testing.T) {
	fn := &fakeNet{}
	n := startFixed(t, fn)
	require.NoError(t, n.Stop(context.Background()))

	require.NoError(t, n.Start(context.Background()))
	assert.Len(t, fn.ofType(wire.MsgRequestAddress), 2)
	assert.Nil(t, n.Endpoint())
	require.NoError(t, n.Announce(context.Background()))
}

func TestRestartOpensFreshSockets(t *testing.T) {
	cfg := testConfig()
	cfg.Device.Address = 1619
	cfg.Network.ListenHost = "127.0.0.1"
	cfg.Network.Port = 0
	cfg.Network.Broadcast = "127.0.0.1:9"
	n, err := New(cfg, testNetwork(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Stop(context.Background()) })
	ctx := context.Background()

	require.NoError(t, n.Start(ctx))
	first := n.Endpoint()
	require.NotNil(t, first)
	require.NoError(t, n.Stop(ctx))
	assert.Nil(t, n.Endpoint())

	require.NoError(t, n.Start(ctx))
	second := n.Endpoint()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	require.NoError(t, n.Announce(ctx))
}

func TestExpirePeers(t *testing.T) {
	fn := &fakeNet{}
	n := startFixed(t, fn)

	info := wire.NewDiscoInfo(2000, "SI-0002", testNetwork())
	info.KeepAliveMillis = 1
	n.Directory().Observe(info, peerRemote)
	require.Equal(t, 1, n.Directory().Len())

	time.Sleep(10 * time.Millisecond)
	n.expirePeers()
	assert.Equal(t, 0, n.Directory().Len())
}
