package node

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiqontrol/hiqnet-go/pkg/config"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

func TestConfigNetworkGateway(t *testing.T) {
	info, err := ConfigNetwork(config.NetworkConfig{
		Interface: "hiqnet-missing0",
		Gateway:   "192.168.1.1",
		DHCP:      true,
	})
	assert.Error(t, err)
	require.NotNil(t, info)
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), info.Gateway)
	assert.True(t, info.DHCP)

	cmd := wire.NewCommand(&wire.Sequence{}, wire.DeviceAddress(1619), wire.BroadcastAddress(), wire.MsgDiscoInfo)
	require.NoError(t, cmd.EncodeDiscoInfo(wire.NewDiscoInfo(1619, "SI-0001", info), true))
	data, err := cmd.Encode()
	require.NoError(t, err)
	dec, err := wire.DecodeCommand(data)
	require.NoError(t, err)
	require.NotNil(t, dec.DiscoInfo)
	ip, ok := dec.DiscoInfo.Network.(*wire.IPNetworkInfo)
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), ip.Gateway)
}

func TestConfigNetworkNoGateway(t *testing.T) {
	info, _ := ConfigNetwork(config.NetworkConfig{Interface: "hiqnet-missing0"})
	require.NotNil(t, info)
	assert.False(t, info.Gateway.IsValid())
}
