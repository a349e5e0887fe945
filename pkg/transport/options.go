package transport

import (
	"time"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
	"github.com/hiqontrol/hiqnet-go/pkg/metrics"
)

// DefaultDialTimeout bounds connection setup on the stream channel.
const DefaultDialTimeout = 5 * time.Second

type options struct {
	logger         log.Logger
	metrics        *metrics.Collector
	maxMessageSize uint32
	dialTimeout    time.Duration
	broadcast      string
	handler        Handler
}

func defaultOptions() options {
	return options{
		logger:         log.NoopLogger{},
		maxMessageSize: DefaultMaxMessageSize,
		dialTimeout:    DefaultDialTimeout,
		broadcast:      DefaultBroadcastAddr,
	}
}

// Option configures channels, endpoints and dispatchers.
type Option func(*options)

// WithLogger sets the protocol logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = log.OrNoop(l) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

// WithMaxMessageSize limits inbound command size.
func WithMaxMessageSize(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.maxMessageSize = n
		}
	}
}

// WithDialTimeout bounds outbound connection setup.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithBroadcast sets the datagram destination used when none is given.
func WithBroadcast(addr string) Option {
	return func(o *options) {
		if addr != "" {
			o.broadcast = addr
		}
	}
}

// WithHandler sets the handler for decoded inbound commands.
func WithHandler(h Handler) Option {
	return func(o *options) { o.handler = h }
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
