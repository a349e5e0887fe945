// Package metrics exposes HiQnet node counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures a Collector.
type Config struct {
	// Namespace prefixes every metric name (default "hiqnet").
	Namespace string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Registry receives the metrics (default prometheus.DefaultRegisterer).
	Registry prometheus.Registerer
}

// Option configures a Collector.
type Option func(*Config)

// WithNamespace sets the metric namespace.
func WithNamespace(ns string) Option {
	return func(c *Config) { c.Namespace = ns }
}

// WithConstLabels sets constant labels.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

// WithRegistry sets the registry.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = reg }
}

// Collector records protocol activity. A nil *Collector is valid and
// records nothing.
type Collector struct {
	sent          *prometheus.CounterVec
	received      *prometheus.CounterVec
	bytesSent     *prometheus.CounterVec
	bytesReceived *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	sendErrors    *prometheus.CounterVec
	readErrors    *prometheus.CounterVec
	connections   prometheus.Gauge
	knownDevices  prometheus.Gauge
	addressClaims *prometheus.CounterVec
}

// New registers the HiQnet metrics and returns their collector.
func New(opts ...Option) *Collector {
	cfg := Config{
		Namespace: "hiqnet",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		})
	}

	return &Collector{
		sent:          counter("commands_sent_total", "Commands written to the network.", "channel", "message"),
		received:      counter("commands_received_total", "Commands decoded from the network.", "channel", "message"),
		bytesSent:     counter("bytes_sent_total", "Bytes written to the network.", "channel"),
		bytesReceived: counter("bytes_received_total", "Bytes read from the network.", "channel"),
		decodeErrors:  counter("decode_errors_total", "Inbound commands rejected by the decoder.", "channel", "kind"),
		sendErrors:    counter("send_errors_total", "Failed writes.", "channel"),
		readErrors:    counter("receive_errors_total", "Socket read or accept failures.", "channel"),
		connections:   gauge("tcp_connections", "Open reliable-channel connections."),
		knownDevices:  gauge("known_devices", "Devices currently present in the directory."),
		addressClaims: counter("address_claims_total", "Device address negotiation outcomes.", "result"),
	}
}

// CommandSent counts an outbound command of size bytes.
func (c *Collector) CommandSent(channel, message string, size int) {
	if c == nil {
		return
	}
	c.sent.WithLabelValues(channel, message).Inc()
	c.bytesSent.WithLabelValues(channel).Add(float64(size))
}

// CommandReceived counts an inbound command of size bytes.
func (c *Collector) CommandReceived(channel, message string, size int) {
	if c == nil {
		return
	}
	c.received.WithLabelValues(channel, message).Inc()
	c.bytesReceived.WithLabelValues(channel).Add(float64(size))
}

// DecodeError counts a rejected inbound buffer.
func (c *Collector) DecodeError(channel, kind string) {
	if c == nil {
		return
	}
	c.decodeErrors.WithLabelValues(channel, kind).Inc()
}

// SendError counts a failed write.
func (c *Collector) SendError(channel string) {
	if c == nil {
		return
	}
	c.sendErrors.WithLabelValues(channel).Inc()
}

// ReceiveError counts a failed socket read or accept.
func (c *Collector) ReceiveError(channel string) {
	if c == nil {
		return
	}
	c.readErrors.WithLabelValues(channel).Inc()
}

// ConnectionOpened increments the open connection gauge.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connections.Inc()
}

// ConnectionClosed decrements the open connection gauge.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connections.Dec()
}

// SetKnownDevices sets the directory size.
func (c *Collector) SetKnownDevices(n int) {
	if c == nil {
		return
	}
	c.knownDevices.Set(float64(n))
}

// AddressClaim counts a negotiation outcome ("claimed", "conflict", "static").
func (c *Collector) AddressClaim(result string) {
	if c == nil {
		return
	}
	c.addressClaims.WithLabelValues(result).Inc()
}
