package log

import (
	"testing"
	"time"

	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerTransport.String(), "TRANSPORT"},
		{LayerWire.String(), "WIRE"},
		{LayerDevice.String(), "DEVICE"},
		{CategoryMessage.String(), "MESSAGE"},
		{CategoryState.String(), "STATE"},
		{CategoryError.String(), "ERROR"},
		{ChannelUDP.String(), "UDP"},
		{ChannelTCP.String(), "TCP"},
		{StateEntityConnection.String(), "CONNECTION"},
		{StateEntityAddress.String(), "ADDRESS"},
		{StateEntityPeer.String(), "PEER"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseEnums(t *testing.T) {
	if v, ok := ParseLayer("wire"); !ok || v != LayerWire {
		t.Errorf("ParseLayer(wire) = %v, %v", v, ok)
	}
	if v, ok := ParseDirection("Out"); !ok || v != DirectionOut {
		t.Errorf("ParseDirection(Out) = %v, %v", v, ok)
	}
	if v, ok := ParseCategory("ERROR"); !ok || v != CategoryError {
		t.Errorf("ParseCategory(ERROR) = %v, %v", v, ok)
	}
	if v, ok := ParseChannel("tcp"); !ok || v != ChannelTCP {
		t.Errorf("ParseChannel(tcp) = %v, %v", v, ok)
	}
	for _, bad := range []string{"", "UNKNOWN", "session"} {
		if _, ok := ParseLayer(bad); ok {
			t.Errorf("ParseLayer(%q) succeeded", bad)
		}
	}
}

func TestNewMessageEvent(t *testing.T) {
	seq := wire.NewSequence(41)
	cmd := wire.NewCommand(seq, wire.DeviceAddress(1619), wire.BroadcastAddress(), wire.MsgHello)
	cmd.Flags.SetSession(true)
	cmd.SessionNumber = 0x1234
	if _, err := cmd.EncodeHello(); err != nil {
		t.Fatalf("EncodeHello: %v", err)
	}

	m := NewMessageEvent(cmd)
	if m.Name != "HELLO" {
		t.Errorf("Name = %q, want HELLO", m.Name)
	}
	if m.MessageID != 0x0008 {
		t.Errorf("MessageID = %#x", m.MessageID)
	}
	if m.Source != "1619.0.0.0.0" || m.Destination != "65535.0.0.0.0" {
		t.Errorf("addresses = %s -> %s", m.Source, m.Destination)
	}
	if m.SequenceNumber != 41 {
		t.Errorf("SequenceNumber = %d, want 41", m.SequenceNumber)
	}
	if m.SessionNumber == nil || *m.SessionNumber != 0x1234 {
		t.Errorf("SessionNumber = %v", m.SessionNumber)
	}
	if m.PayloadSize != 4 {
		t.Errorf("PayloadSize = %d, want 4", m.PayloadSize)
	}
}

func TestEventCBORRoundTrip(t *testing.T) {
	sn := uint16(7)
	event := Event{
		Timestamp:     time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC),
		ConnectionID:  "udp",
		Direction:     DirectionOut,
		Layer:         LayerWire,
		Category:      CategoryMessage,
		Channel:       ChannelTCP,
		RemoteAddr:    "192.168.1.6:3804",
		DeviceAddress: 1619,
		Message: &MessageEvent{
			MessageID:     0x0129,
			Name:          "LOCATE",
			Source:        "1.0.0.0.0",
			Destination:   "1619.0.0.0.0",
			Flags:         0x0120,
			SessionNumber: &sn,
			PayloadSize:   13,
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}

	if !got.Timestamp.Equal(event.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, event.Timestamp)
	}
	if got.Channel != ChannelTCP || got.DeviceAddress != 1619 || got.RemoteAddr != event.RemoteAddr {
		t.Errorf("envelope mismatch: %+v", got)
	}
	if got.Message == nil || got.Message.Name != "LOCATE" || *got.Message.SessionNumber != 7 {
		t.Errorf("message mismatch: %+v", got.Message)
	}
	if got.Frame != nil || got.Error != nil || got.StateChange != nil {
		t.Error("unexpected payload fields set")
	}
}

func TestDecodeEventGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xFF, 0x00}); err == nil {
		t.Error("expected error for invalid CBOR")
	}
}
