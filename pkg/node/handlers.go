package node

import (
	"bytes"
	"context"
	"strconv"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
	"github.com/hiqontrol/hiqnet-go/pkg/transport"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

var _ transport.Handler = (*Node)(nil)

// HandleCommand processes one inbound command.
func (n *Node) HandleCommand(ctx context.Context, in transport.Inbound) {
	cmd := in.Command
	if !cmd.Destination.IsBroadcast() && cmd.Destination.Device != n.dev.DeviceAddress() {
		return
	}

	switch cmd.MessageType {
	case wire.MsgDiscoInfo:
		n.handleDiscoInfo(ctx, in)
	case wire.MsgRequestAddress:
		n.handleRequestAddress(ctx, in)
	case wire.MsgAddressUsed:
		n.handleAddressUsed(in)
	case wire.MsgGoodbye:
		n.handleGoodbye(in)
	case wire.MsgLocate:
		n.handleLocate(in)
	case wire.MsgHello:
		if h, err := wire.DecodeHello(cmd.Payload); err == nil {
			n.logger.Debug("hello", "from", cmd.Source.String(), "session", h.SessionNumber)
		}
	default:
		n.logger.Debug("unhandled command", "command", cmd.String(), "remote", in.RemoteAddr)
	}
}

func (n *Node) handleDiscoInfo(ctx context.Context, in transport.Inbound) {
	cmd := in.Command
	info := cmd.DiscoInfo
	if info == nil || info.SerialNumber == n.dev.Manager().SerialNumber {
		return
	}

	if info.DeviceAddress == n.dev.DeviceAddress() && !n.signalConflict(info.DeviceAddress) {
		n.replyAddressUsed(ctx, in)
	}

	if n.dir.Observe(info, in.RemoteAddr) {
		n.logState(log.StateEntityPeer, "", "ONLINE", "device "+strconv.Itoa(int(info.DeviceAddress)))
		n.logger.Info("device discovered",
			"address", info.DeviceAddress,
			"serial", info.SerialNumber,
			"remote", in.RemoteAddr)
	}
	n.metrics.SetKnownDevices(n.dir.Len())

	if cmd.IsQuery() {
		reply, err := n.dev.DiscoInfo(cmd.Source, true)
		if err != nil {
			n.logger.Warn("cannot build DISCOINFO reply", "error", err)
			return
		}
		n.send(ctx, reply, in)
	}
}

func (n *Node) handleRequestAddress(ctx context.Context, in transport.Inbound) {
	cmd := in.Command
	requested, err := wire.DecodeRequestAddress(cmd.Payload)
	if err != nil {
		n.logger.Debug("bad REQADDR payload", "remote", in.RemoteAddr, "error", err)
		return
	}

	if cs := n.claiming(); cs != nil {
		n.mu.Lock()
		own := cs.requests[cmd.SequenceNumber] && cmd.Source.Device == cs.candidate
		n.mu.Unlock()
		if !own && requested == cs.candidate {
			// Someone else wants the same address; both sides move on.
			n.signalConflict(requested)
		}
		return
	}

	if requested == n.dev.DeviceAddress() {
		n.replyAddressUsed(ctx, in)
	}
}

func (n *Node) handleAddressUsed(in transport.Inbound) {
	owner := in.Command.Source.Device
	if n.signalConflict(owner) {
		return
	}
	if owner == n.dev.DeviceAddress() {
		n.logger.Warn("another device reports our address in use",
			"address", owner, "remote", in.RemoteAddr)
	}
}

func (n *Node) handleGoodbye(in transport.Inbound) {
	addr, err := wire.DecodeGoodbye(in.Command.Payload)
	if err != nil {
		addr = in.Command.Source.Device
	}
	if n.dir.Remove(addr) {
		n.logState(log.StateEntityPeer, "ONLINE", "OFFLINE", "goodbye from "+strconv.Itoa(int(addr)))
		n.logger.Info("device left", "address", addr)
		n.metrics.SetKnownDevices(n.dir.Len())
	}
}

func (n *Node) handleLocate(in transport.Inbound) {
	loc, err := wire.DecodeLocate(in.Command.Payload)
	if err != nil {
		n.logger.Debug("bad LOCATE payload", "remote", in.RemoteAddr, "error", err)
		return
	}
	serial := []byte(n.dev.Manager().SerialNumber)
	if len(loc.SerialNumber) > 0 && !bytes.Equal(loc.SerialNumber, serial) {
		return
	}

	n.mu.Lock()
	n.locating = loc.On()
	n.mu.Unlock()
	n.logger.Info("locate", "on", loc.On(), "from", in.Command.Source.String())
}

func (n *Node) replyAddressUsed(ctx context.Context, in transport.Inbound) {
	n.send(ctx, n.dev.AddressUsed(in.Command.Source), in)
}

// send answers in on the channel it arrived on.
func (n *Node) send(ctx context.Context, reply *wire.Command, in transport.Inbound) {
	reply.Flags.SetGuaranteed(in.Reliable())
	if err := n.dispatcher.Send(ctx, reply, in.RemoteAddr); err != nil {
		n.logger.Warn("reply failed", "command", reply.MessageType.String(), "remote", in.RemoteAddr, "error", err)
	}
}

func (n *Node) expirePeers() {
	for _, p := range n.dir.Expire() {
		n.logState(log.StateEntityPeer, "ONLINE", "EXPIRED", "device "+strconv.Itoa(int(p.Address)))
		n.logger.Info("device expired", "address", p.Address, "serial", p.SerialNumber)
	}
	n.metrics.SetKnownDevices(n.dir.Len())
}
