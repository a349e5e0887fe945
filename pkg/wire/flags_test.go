package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagBits(t *testing.T) {
	tests := []struct {
		name string
		set  func(*Flags)
		get  func(Flags) bool
		want uint16
	}{
		{"request ack", func(f *Flags) { f.SetRequestAck(true) }, Flags.RequestAck, 0x0001},
		{"ack", func(f *Flags) { f.SetAck(true) }, Flags.Ack, 0x0002},
		{"info", func(f *Flags) { f.SetInfo(true) }, Flags.Info, 0x0004},
		{"error", func(f *Flags) { f.SetError(true) }, Flags.Error, 0x0008},
		{"guaranteed", func(f *Flags) { f.SetGuaranteed(true) }, Flags.Guaranteed, 0x0020},
		{"multipart", func(f *Flags) { f.SetMultipart(true) }, Flags.Multipart, 0x0040},
		{"session", func(f *Flags) { f.SetSession(true) }, Flags.Session, 0x0100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Flags
			tt.set(&f)
			assert.True(t, tt.get(f))
			assert.Equal(t, tt.want, uint16(f))
			assert.Equal(t, []byte{byte(tt.want >> 8), byte(tt.want)}, f.Encode())
		})
	}
}

func TestFlagsClear(t *testing.T) {
	f := FlagGuaranteed | FlagInfo
	f.SetGuaranteed(false)
	assert.False(t, f.Guaranteed())
	assert.True(t, f.Info())
	assert.Equal(t, FlagInfo, f)
}

func TestFlagsRoundTrip(t *testing.T) {
	for _, v := range []uint16{0, 1, 0x0020, 0x01FF, 0xFFFF, 0x8001} {
		f := Flags(v)
		back, err := ParseFlags(f.Encode())
		require.NoError(t, err)
		assert.Equal(t, f, back)
	}

	_, err := ParseFlags([]byte{1})
	assert.ErrorIs(t, err, ErrFraming)
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "NONE", Flags(0).String())
	assert.Equal(t, "INFO|GUARANTEED", (FlagGuaranteed | FlagInfo).String())
	assert.Equal(t, "ACK|0x8000", (FlagAck | 0x8000).String())
}

func TestParameterFlagsSensor(t *testing.T) {
	var p ParameterFlags
	assert.False(t, p.Sensor())
	p.SetSensor(true)
	assert.True(t, p.Sensor())
	assert.Equal(t, []byte{0x00, 0x02}, p.Encode())
	p.SetSensor(false)
	assert.Equal(t, ParameterFlags(0), p)
}
