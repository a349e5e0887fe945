package log

import (
	"bytes"
	"io"
	"testing"
	"time"
)

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func captureBuffer(t *testing.T, events []Event) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger := NewStreamLogger(nopCloser{&buf})
	for _, e := range events {
		logger.Log(e)
	}
	return &buf
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, e)
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, ConnectionID: "udp", Direction: DirectionIn, Layer: LayerTransport, Channel: ChannelUDP, Frame: &FrameEvent{Size: 72}},
		{Timestamp: base.Add(time.Second), ConnectionID: "udp", Direction: DirectionIn, Layer: LayerWire, Channel: ChannelUDP, Message: &MessageEvent{Name: "DISCOINFO"}},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "c-1", Direction: DirectionOut, Layer: LayerWire, Channel: ChannelTCP, Message: &MessageEvent{Name: "LOCATE", Source: "1619.0.0.0.0", Destination: "2000.0.0.0.0"}},
		{Timestamp: base.Add(3 * time.Second), ConnectionID: "c-1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryError, Channel: ChannelTCP, DeviceAddress: 1619, Error: &ErrorEventData{Kind: "framing"}},
	}

	in := DirectionIn
	tcp := ChannelTCP
	wireLayer := LayerWire
	errCat := CategoryError
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)
	local, peer, other := uint16(1619), uint16(2000), uint16(0)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"connection", Filter{ConnectionID: "c-1"}, 2},
		{"direction", Filter{Direction: &in}, 3},
		{"channel", Filter{Channel: &tcp}, 2},
		{"layer", Filter{Layer: &wireLayer}, 2},
		{"category", Filter{Category: &errCat}, 1},
		{"message name", Filter{MessageName: "LOCATE"}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"combined", Filter{Channel: &tcp, Direction: &in}, 1},
		{"local device", Filter{Device: &local}, 2},
		{"peer device", Filter{Device: &peer}, 1},
		{"unset device", Filter{Device: &other}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewStreamReader(captureBuffer(t, events), tt.filter)
			got := readAll(t, r)
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestReaderEmpty(t *testing.T) {
	r := NewStreamReader(&bytes.Buffer{}, Filter{})
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next = %v, want io.EOF", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader("/nonexistent/capture.hqlog"); err == nil {
		t.Error("expected error for missing file")
	}
}
