package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

var testTime = time.Date(2026, 3, 14, 20, 15, 32, 123456000, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.hqlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}
	return path
}

func readEvents(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer reader.Close()

	var events []log.Event
	if err := eachEvent(reader, func(e log.Event) error {
		events = append(events, e)
		return nil
	}); err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return events
}

func discoInfoCommand(t *testing.T) *wire.Command {
	t.Helper()
	cmd := wire.NewCommand(&wire.Sequence{}, wire.DeviceAddress(2000), wire.BroadcastAddress(), wire.MsgDiscoInfo)
	if err := cmd.EncodeDiscoInfo(wire.NewDiscoInfo(2000, "SI-0002", &wire.IPNetworkInfo{}), true); err != nil {
		t.Fatalf("EncodeDiscoInfo: %v", err)
	}
	return cmd
}

func helloCommand(t *testing.T) *wire.Command {
	t.Helper()
	cmd := wire.NewCommand(wire.NewSequence(41), wire.DeviceAddress(1619), wire.DeviceAddress(2000), wire.MsgHello)
	if _, err := cmd.EncodeHello(); err != nil {
		t.Fatalf("EncodeHello: %v", err)
	}
	cmd.Flags.SetGuaranteed(true)
	return cmd
}

func encode(t *testing.T, cmd *wire.Command) []byte {
	t.Helper()
	data, err := cmd.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func frameEvent(ts time.Time, dir log.Direction, ch log.Channel, remote string, data []byte) log.Event {
	return log.Event{
		Timestamp:    ts,
		ConnectionID: "udp",
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Channel:      ch,
		RemoteAddr:   remote,
		Frame:        &log.FrameEvent{Size: len(data), Data: data},
	}
}

func messageEvent(ts time.Time, dir log.Direction, cmd *wire.Command) log.Event {
	return log.Event{
		Timestamp:    ts,
		ConnectionID: "udp",
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		RemoteAddr:   "192.168.1.9:3804",
		Message:      log.NewMessageEvent(cmd),
	}
}
