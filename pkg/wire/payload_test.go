package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand() *Command {
	return NewCommand(&Sequence{}, DeviceAddress(1), DeviceAddress(2), MsgDiscoInfo)
}

func TestHelloPayload(t *testing.T) {
	cmd := newTestCommand()
	sn, err := cmd.EncodeHello()
	require.NoError(t, err)
	assert.Equal(t, MsgHello, cmd.MessageType)

	hello, err := DecodeHello(cmd.Payload)
	require.NoError(t, err)
	assert.Equal(t, sn, hello.SessionNumber)
	assert.Equal(t, SupportedFlagMask, hello.FlagMask)
	assert.Equal(t, []byte{0x01, 0xFF}, cmd.Payload[2:])
}

func TestLocatePayload(t *testing.T) {
	cmd := newTestCommand()
	require.NoError(t, cmd.LocateOn([]byte("SiCompact")))
	assert.Equal(t, MsgLocate, cmd.MessageType)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x00, 0x09}, cmd.Payload[:4])

	loc, err := DecodeLocate(cmd.Payload)
	require.NoError(t, err)
	assert.True(t, loc.On())
	assert.Equal(t, []byte("SiCompact"), loc.SerialNumber)

	require.NoError(t, cmd.LocateOff([]byte("SiCompact")))
	loc, err = DecodeLocate(cmd.Payload)
	require.NoError(t, err)
	assert.False(t, loc.On())

	_, err = DecodeLocate([]byte{0xFF, 0xFF, 0x00, 0x05, 'a'})
	assert.ErrorIs(t, err, ErrFraming)
}

func TestRequestAddressPayload(t *testing.T) {
	cmd := newTestCommand()
	require.NoError(t, cmd.EncodeRequestAddress(0x1234))
	assert.Equal(t, MsgRequestAddress, cmd.MessageType)
	assert.Equal(t, []byte{0x12, 0x34}, cmd.Payload)

	addr, err := DecodeRequestAddress(cmd.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), addr)

	assert.ErrorIs(t, cmd.EncodeRequestAddress(0), ErrRange)
	assert.ErrorIs(t, cmd.EncodeRequestAddress(BroadcastDevice), ErrRange)
}

func TestGoodbyePayload(t *testing.T) {
	cmd := newTestCommand()
	cmd.EncodeGoodbye(1619)
	assert.Equal(t, MsgGoodbye, cmd.MessageType)

	addr, err := DecodeGoodbye(cmd.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint16(1619), addr)

	_, err = DecodeGoodbye(nil)
	assert.ErrorIs(t, err, ErrFraming)
}

func TestGetVDListPayload(t *testing.T) {
	cmd := newTestCommand()
	cmd.EncodeGetVDList("")
	assert.Equal(t, MsgGetVDList, cmd.MessageType)
	assert.Nil(t, cmd.Payload)

	cmd.EncodeGetVDList("foh")
	assert.Equal(t, "foh", DecodeGetVDList(cmd.Payload))
}

func TestUnimplementedPayloads(t *testing.T) {
	tests := []struct {
		name  string
		build func(*Command) error
		want  MessageType
	}{
		{"store", (*Command).EncodeStore, MsgStore},
		{"recall", (*Command).EncodeRecall, MsgRecall},
		{"get attributes", (*Command).EncodeGetAttributes, MsgGetAttributes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newTestCommand()
			err := tt.build(cmd)
			assert.ErrorIs(t, err, ErrNotImplemented)
			assert.Equal(t, tt.want, cmd.MessageType)
			assert.Nil(t, cmd.Payload)
		})
	}
}

func TestDiscoInfoEncodeErrors(t *testing.T) {
	d := NewDiscoInfo(1, "this serial is too long", &IPNetworkInfo{})
	_, err := d.Encode()
	assert.ErrorIs(t, err, ErrRange)

	d = NewDiscoInfo(1, "ok", &RS232NetworkInfo{BaudRate: 115200})
	_, err = d.Encode()
	assert.ErrorIs(t, err, ErrNotImplemented)

	d = NewDiscoInfo(1, "ok", nil)
	_, err = d.Encode()
	assert.ErrorIs(t, err, ErrInvalidArgument)

	cmd := newTestCommand()
	err = cmd.EncodeDiscoInfo(NewDiscoInfo(1, "ok", &RS232NetworkInfo{}), false)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestDiscoInfoZeroNetwork(t *testing.T) {
	d := NewDiscoInfo(9, "", &IPNetworkInfo{})
	b, err := d.Encode()
	require.NoError(t, err)

	back, err := DecodeDiscoInfo(b)
	require.NoError(t, err)
	ip := back.Network.(*IPNetworkInfo)
	assert.Equal(t, "0.0.0.0", ip.IP.String())
	assert.Equal(t, "00:00:00:00:00:00", ip.MAC.String())
	assert.Equal(t, "", back.SerialNumber)
}

func TestDecodeDiscoInfoTruncated(t *testing.T) {
	d := NewDiscoInfo(9, "abc", &IPNetworkInfo{})
	b, err := d.Encode()
	require.NoError(t, err)

	for _, n := range []int{0, 5, 20, 27, len(b) - 1} {
		_, err := DecodeDiscoInfo(b[:n])
		assert.ErrorIs(t, err, ErrFraming, "length %d", n)
	}
}
