package device

import (
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// NewCommand builds a command from d to dst with the next sequence number.
func (d *Device) NewCommand(dst wire.Address, mt wire.MessageType) *wire.Command {
	return wire.NewCommand(d.seq, d.Address(), dst, mt)
}

// DiscoInfoPayload returns the DISCOINFO body describing d.
func (d *Device) DiscoInfoPayload() *wire.DiscoInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info := wire.NewDiscoInfo(d.address, d.manager.SerialNumber, d.network)
	info.KeepAliveMillis = d.keepAlive
	return info
}

// DiscoInfo builds a DISCOINFO command. With info set it announces d;
// otherwise it asks the destination to announce itself.
func (d *Device) DiscoInfo(dst wire.Address, info bool) (*wire.Command, error) {
	cmd := d.NewCommand(dst, wire.MsgDiscoInfo)
	if err := cmd.EncodeDiscoInfo(d.DiscoInfoPayload(), info); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Hello builds a HELLO command and returns the session number it carries.
func (d *Device) Hello(dst wire.Address) (*wire.Command, uint16, error) {
	cmd := d.NewCommand(dst, wire.MsgHello)
	sn, err := cmd.EncodeHello()
	if err != nil {
		return nil, 0, err
	}
	return cmd, sn, nil
}

// Goodbye builds a broadcast GOODBYE for d.
func (d *Device) Goodbye() *wire.Command {
	cmd := d.NewCommand(wire.BroadcastAddress(), wire.MsgGoodbye)
	cmd.EncodeGoodbye(d.DeviceAddress())
	return cmd
}

// LocateOn asks dst to start its locate indicator. serial selects the
// device when dst is the broadcast address; it may be nil.
func (d *Device) LocateOn(dst wire.Address, serial []byte) (*wire.Command, error) {
	cmd := d.NewCommand(dst, wire.MsgLocate)
	if err := cmd.LocateOn(serial); err != nil {
		return nil, err
	}
	return cmd, nil
}

// LocateOff asks dst to stop its locate indicator.
func (d *Device) LocateOff(dst wire.Address, serial []byte) (*wire.Command, error) {
	cmd := d.NewCommand(dst, wire.MsgLocate)
	if err := cmd.LocateOff(serial); err != nil {
		return nil, err
	}
	return cmd, nil
}

// RequestAddress builds a broadcast REQADDR asking whether addr is taken.
func (d *Device) RequestAddress(addr uint16) (*wire.Command, error) {
	cmd := d.NewCommand(wire.BroadcastAddress(), wire.MsgRequestAddress)
	if err := cmd.EncodeRequestAddress(addr); err != nil {
		return nil, err
	}
	return cmd, nil
}

// AddressUsed builds an ADDRUSED reply telling dst that d holds its
// address.
func (d *Device) AddressUsed(dst wire.Address) *wire.Command {
	cmd := d.NewCommand(dst, wire.MsgAddressUsed)
	cmd.EncodeAddressUsed()
	return cmd
}

// GetVDList asks dst for its virtual devices, optionally within a
// workgroup.
func (d *Device) GetVDList(dst wire.Address, workgroup string) *wire.Command {
	cmd := d.NewCommand(dst, wire.MsgGetVDList)
	cmd.EncodeGetVDList(workgroup)
	return cmd
}

// Store is not supported and always returns wire.ErrNotImplemented.
// Unsupported builders do not consume a sequence number.
func (d *Device) Store(wire.Address) (*wire.Command, error) {
	return nil, new(wire.Command).EncodeStore()
}

// Recall is not supported and always returns wire.ErrNotImplemented.
func (d *Device) Recall(wire.Address) (*wire.Command, error) {
	return nil, new(wire.Command).EncodeRecall()
}

// GetAttributes is not supported and always returns wire.ErrNotImplemented.
func (d *Device) GetAttributes(wire.Address) (*wire.Command, error) {
	return nil, new(wire.Command).EncodeGetAttributes()
}
