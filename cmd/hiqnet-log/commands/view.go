package commands

import (
	"fmt"
	"io"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// timeLayout is the timestamp format used by view and export.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// formatEvent writes one event as a header line followed by its details:
//
//	timestamp [conn:id] DIR CHANNEL LAYER Type
func formatEvent(w io.Writer, event log.Event) {
	label, details := describe(event)
	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s %s\n", event.Timestamp.UTC().Format(timeLayout),
		shortID(event.ConnectionID), event.Direction, event.Channel, event.Layer, label)
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}
	if details != nil {
		details(w)
	}
	fmt.Fprintln(w)
}

// describe returns the type label of an event and a function printing the
// payload it carries.
func describe(event log.Event) (string, func(io.Writer)) {
	switch {
	case event.Frame != nil:
		return "Frame", func(w io.Writer) { formatFrameDetails(w, event.Frame) }
	case event.Message != nil:
		return event.Message.Name, func(w io.Writer) { formatMessageDetails(w, event.Message) }
	case event.StateChange != nil:
		return "State", func(w io.Writer) { formatStateChangeDetails(w, event.StateChange) }
	case event.Error != nil:
		return "Error", func(w io.Writer) { formatErrorDetails(w, event.Error) }
	}
	return "Unknown", nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) == 0 {
		return
	}
	suffix := ""
	if frame.Truncated {
		suffix = " (truncated)"
	}
	fmt.Fprintf(w, "  Data: %x%s\n", frame.Data, suffix)
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  %s -> %s  seq=%d hop=%d\n", msg.Source, msg.Destination, msg.SequenceNumber, msg.HopCounter)
	fmt.Fprintf(w, "  Flags: %s (0x%04x)\n", wire.Flags(msg.Flags), msg.Flags)
	if msg.SessionNumber != nil {
		fmt.Fprintf(w, "  Session: %d\n", *msg.SessionNumber)
	}
	if msg.SerialNumber != "" {
		fmt.Fprintf(w, "  Serial: %s\n", msg.SerialNumber)
	}
	fmt.Fprintf(w, "  Payload: %d bytes\n", msg.PayloadSize)
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Kind != "" {
		fmt.Fprintf(w, "  Kind: %s\n", err.Kind)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// RunView prints the events of path matching opts.
func RunView(path string, opts FilterOptions, output io.Writer) error {
	filter, err := opts.Build()
	if err != nil {
		return err
	}
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	return eachEvent(reader, func(event log.Event) error {
		formatEvent(output, event)
		return nil
	})
}
