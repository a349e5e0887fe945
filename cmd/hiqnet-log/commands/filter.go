// Package commands implements the hiqnet-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
)

// FilterOptions holds the filter flags shared by view, export and filter.
type FilterOptions struct {
	ConnID    string
	Message   string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
	Channel   string
	Device    string
}

// Build converts the flag values into a log.Filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: o.ConnID,
		MessageName:  strings.ToUpper(o.Message),
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if o.Layer != "" {
		l, err := parseLayer(o.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if o.Direction != "" {
		d, err := parseDirection(o.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if o.Category != "" {
		c, err := parseCategory(o.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if o.Channel != "" {
		c, err := parseChannel(o.Channel)
		if err != nil {
			return filter, err
		}
		filter.Channel = &c
	}
	if o.Device != "" {
		d, err := strconv.ParseUint(o.Device, 10, 16)
		if err != nil {
			return filter, fmt.Errorf("invalid device address: %s", o.Device)
		}
		dev := uint16(d)
		filter.Device = &dev
	}
	return filter, nil
}

// RunFilter copies the events of path matching opts to output.
func RunFilter(path, output string, opts FilterOptions) (int, error) {
	filter, err := opts.Build()
	if err != nil {
		return 0, err
	}
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}

	count := 0
	err = eachEvent(reader, func(event log.Event) error {
		logger.Log(event)
		count++
		return nil
	})
	if cerr := logger.Close(); err == nil {
		err = cerr
	}
	return count, err
}

// eachEvent calls fn for every event until the end of the capture.
func eachEvent(reader *log.Reader, fn func(log.Event) error) error {
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

func parseLayer(s string) (log.Layer, error) {
	if v, ok := log.ParseLayer(s); ok {
		return v, nil
	}
	return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or device)", s)
}

func parseDirection(s string) (log.Direction, error) {
	if v, ok := log.ParseDirection(s); ok {
		return v, nil
	}
	return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
}

func parseCategory(s string) (log.Category, error) {
	if v, ok := log.ParseCategory(s); ok {
		return v, nil
	}
	return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
}

func parseChannel(s string) (log.Channel, error) {
	if v, ok := log.ParseChannel(s); ok {
		return v, nil
	}
	return 0, fmt.Errorf("invalid channel: %s (must be udp or tcp)", s)
}
