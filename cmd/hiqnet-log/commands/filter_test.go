package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
)

func TestRunFilter(t *testing.T) {
	disco := discoInfoCommand(t)
	tcpFrame := frameEvent(testTime.Add(time.Second), log.DirectionOut, log.ChannelTCP, "192.168.1.9:3804", encode(t, helloCommand(t)))
	tcpFrame.ConnectionID = "tcp-1"
	path := createTestLogFile(t, []log.Event{
		frameEvent(testTime, log.DirectionIn, log.ChannelUDP, "192.168.1.9:3804", encode(t, disco)),
		messageEvent(testTime, log.DirectionIn, disco),
		tcpFrame,
	})

	tests := []struct {
		name string
		opts FilterOptions
		want int
	}{
		{"all", FilterOptions{}, 3},
		{"channel", FilterOptions{Channel: "tcp"}, 1},
		{"message", FilterOptions{Message: "discoinfo"}, 1},
		{"connection", FilterOptions{ConnID: "tcp-1"}, 1},
		{"layer", FilterOptions{Layer: "transport"}, 2},
		{"time", FilterOptions{TimeStart: "2026-03-14T20:15:33Z"}, 1},
		{"device", FilterOptions{Device: "2000"}, 1},
		{"none", FilterOptions{Category: "error"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := filepath.Join(t.TempDir(), "out.hqlog")
			n, err := RunFilter(path, output, tt.opts)
			if err != nil {
				t.Fatalf("RunFilter: %v", err)
			}
			if n != tt.want {
				t.Errorf("RunFilter wrote %d events, want %d", n, tt.want)
			}
			if got := len(readEvents(t, output)); got != tt.want {
				t.Errorf("output holds %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestRunFilterInvalidOptions(t *testing.T) {
	path := createTestLogFile(t, nil)
	output := filepath.Join(t.TempDir(), "out.hqlog")

	if _, err := RunFilter(path, output, FilterOptions{Layer: "service"}); err == nil {
		t.Error("expected error for invalid layer")
	}
	if _, err := RunFilter(path, output, FilterOptions{Device: "70000"}); err == nil {
		t.Error("expected error for out of range device address")
	}
}
