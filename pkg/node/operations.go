package node

import (
	"context"
	"fmt"

	"github.com/hiqontrol/hiqnet-go/pkg/discovery"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

func (n *Node) ready() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started || n.dispatcher == nil {
		return ErrNotStarted
	}
	return nil
}

// Announce broadcasts the node's DISCOINFO.
func (n *Node) Announce(ctx context.Context) error {
	if err := n.ready(); err != nil {
		return err
	}
	cmd, err := n.dev.DiscoInfo(wire.BroadcastAddress(), true)
	if err != nil {
		return err
	}
	return n.dispatcher.Send(ctx, cmd, "")
}

// Discover broadcasts a DISCOINFO query; devices answer with their own
// DISCOINFO and land in the directory.
func (n *Node) Discover(ctx context.Context) error {
	if err := n.ready(); err != nil {
		return err
	}
	cmd, err := n.dev.DiscoInfo(wire.BroadcastAddress(), false)
	if err != nil {
		return err
	}
	return n.dispatcher.Send(ctx, cmd, "")
}

// Peers returns the known devices.
func (n *Node) Peers() []discovery.Peer {
	return n.dir.Peers()
}

func (n *Node) peer(address uint16) (discovery.Peer, error) {
	if err := n.ready(); err != nil {
		return discovery.Peer{}, err
	}
	p, ok := n.dir.Lookup(address)
	if !ok {
		return discovery.Peer{}, fmt.Errorf("%w: device %d", ErrUnknownPeer, address)
	}
	return p, nil
}

// Locate switches the locate indicator of a known device on or off.
func (n *Node) Locate(ctx context.Context, address uint16, on bool) error {
	p, err := n.peer(address)
	if err != nil {
		return err
	}
	dst := wire.DeviceAddress(address)
	serial := []byte(p.SerialNumber)

	cmd, err := n.dev.LocateOff(dst, serial)
	if on {
		cmd, err = n.dev.LocateOn(dst, serial)
	}
	if err != nil {
		return err
	}
	return n.dispatcher.Send(ctx, cmd, p.RemoteAddr)
}

// Hello opens a session with a known device over the reliable channel and
// returns the session number sent.
func (n *Node) Hello(ctx context.Context, address uint16) (uint16, error) {
	p, err := n.peer(address)
	if err != nil {
		return 0, err
	}
	cmd, sn, err := n.dev.Hello(wire.DeviceAddress(address))
	if err != nil {
		return 0, err
	}
	cmd.Flags.SetGuaranteed(true)
	if err := n.dispatcher.Send(ctx, cmd, p.RemoteAddr); err != nil {
		return 0, err
	}
	return sn, nil
}

// GetVDList asks a known device for its virtual devices. The reply is
// logged like any other inbound command.
func (n *Node) GetVDList(ctx context.Context, address uint16, workgroup string) error {
	p, err := n.peer(address)
	if err != nil {
		return err
	}
	return n.dispatcher.Send(ctx, n.dev.GetVDList(wire.DeviceAddress(address), workgroup), p.RemoteAddr)
}

// AnnouncerStats reports keepalive announcement activity.
func (n *Node) AnnouncerStats() AnnouncerStats {
	n.mu.Lock()
	a := n.announcer
	n.mu.Unlock()
	if a == nil {
		return AnnouncerStats{}
	}
	return a.Stats()
}
