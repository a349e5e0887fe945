package commands

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
)

func TestExportJSONL(t *testing.T) {
	disco := discoInfoCommand(t)
	path := createTestLogFile(t, []log.Event{
		frameEvent(testTime, log.DirectionIn, log.ChannelUDP, "192.168.1.9:3804", encode(t, disco)),
		messageEvent(testTime, log.DirectionIn, disco),
	})
	output := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", output, FilterOptions{}); err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	var events []log.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e log.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line is not JSON: %v: %s", err, scanner.Text())
		}
		events = append(events, e)
	}
	if len(events) != 2 {
		t.Fatalf("got %d lines, want 2", len(events))
	}
	if events[0].Frame == nil || events[0].Frame.Size != len(events[0].Frame.Data) {
		t.Errorf("frame not exported: %+v", events[0])
	}
	if events[1].Message == nil || events[1].Message.SerialNumber != "SI-0002" {
		t.Errorf("message not exported: %+v", events[1])
	}
}

func TestExportCSV(t *testing.T) {
	path := createTestLogFile(t, []log.Event{
		messageEvent(testTime, log.DirectionOut, helloCommand(t)),
		{
			Timestamp:     testTime,
			Layer:         log.LayerDevice,
			Category:      log.CategoryState,
			DeviceAddress: 1619,
			StateChange:   &log.StateChangeEvent{Entity: log.StateEntityAddress, NewState: "1619"},
		},
	})
	output := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", output, FilterOptions{}); err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(csvHeader, ",") {
		t.Errorf("header = %v", rows[0])
	}

	hello := rows[1]
	if hello[2] != "OUT" || hello[8] != "HELLO" {
		t.Errorf("hello row = %v", hello)
	}
	if hello[9] != "1619.0.0.0.0" || hello[10] != "2000.0.0.0.0" || hello[11] != "41" {
		t.Errorf("hello addressing = %v", hello)
	}

	state := rows[2]
	if state[4] != "DEVICE" || state[7] != "1619" || state[8] != "state" {
		t.Errorf("state row = %v", state)
	}
}

func TestExportFiltered(t *testing.T) {
	disco := discoInfoCommand(t)
	path := createTestLogFile(t, []log.Event{
		messageEvent(testTime, log.DirectionIn, disco),
		messageEvent(testTime, log.DirectionOut, helloCommand(t)),
	})
	output := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", output, FilterOptions{Direction: "in"}); err != nil {
		t.Fatalf("RunExport: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.Contains(string(data), "HELLO") || !strings.Contains(string(data), "DISCOINFO") {
		t.Errorf("direction filter not applied:\n%s", data)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, nil)
	output := filepath.Join(t.TempDir(), "out.xml")

	err := RunExport(path, "xml", output, FilterOptions{})
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected unknown format error, got %v", err)
	}
}
