package log

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
	hex    bool
}

// SlogOption configures a SlogAdapter.
type SlogOption func(*SlogAdapter)

// WithHexDump adds the raw bytes of frame events as a hex attribute.
func WithHexDump() SlogOption {
	return func(a *SlogAdapter) { a.hex = true }
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger, opts ...SlogOption) *SlogAdapter {
	a := &SlogAdapter{logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
		slog.String("channel", event.Channel.String()),
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}
	if event.DeviceAddress != 0 {
		attrs = append(attrs, slog.Uint64("device", uint64(event.DeviceAddress)))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
		if a.hex {
			attrs = append(attrs, slog.String("hex", hex.EncodeToString(event.Frame.Data)))
		}
	case event.Message != nil:
		m := event.Message
		attrs = append(attrs,
			slog.String("msg_name", m.Name),
			slog.String("src", m.Source),
			slog.String("dst", m.Destination),
			slog.Uint64("seq", uint64(m.SequenceNumber)),
			slog.Uint64("flags", uint64(m.Flags)),
			slog.Int("payload_size", m.PayloadSize),
		)
		if m.SessionNumber != nil {
			attrs = append(attrs, slog.Uint64("session", uint64(*m.SessionNumber)))
		}
		if m.SerialNumber != "" {
			attrs = append(attrs, slog.String("serial", m.SerialNumber))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_kind", event.Error.Kind),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
