package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
)

// RunExport exports the capture to the specified format. An empty output
// writes to stdout.
func RunExport(path, format, output string, opts FilterOptions) error {
	filter, err := opts.Build()
	if err != nil {
		return err
	}
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return eachEvent(reader, func(event log.Event) error {
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

var csvHeader = []string{
	"timestamp", "connection_id", "direction", "channel", "layer", "category",
	"remote", "device", "type", "source", "destination", "sequence",
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	err := eachEvent(reader, func(event log.Event) error {
		return cw.Write(csvRow(event))
	})
	cw.Flush()
	if err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return cw.Error()
}

// csvRow flattens an event into the csvHeader columns. Message names are
// kept as-is; other event types are lower-cased.
func csvRow(event log.Event) []string {
	typ, _ := describe(event)
	var src, dst, seq, device string
	if m := event.Message; m != nil {
		src, dst = m.Source, m.Destination
		seq = strconv.FormatUint(uint64(m.SequenceNumber), 10)
	} else {
		typ = strings.ToLower(typ)
	}
	if event.DeviceAddress != 0 {
		device = strconv.FormatUint(uint64(event.DeviceAddress), 10)
	}
	return []string{
		event.Timestamp.UTC().Format(timeLayout),
		event.ConnectionID,
		event.Direction.String(),
		event.Channel.String(),
		event.Layer.String(),
		event.Category.String(),
		event.RemoteAddr,
		device,
		typ,
		src,
		dst,
		seq,
	}
}
