// Command hiqnet-node runs a HiQnet node.
//
// The node claims a device address, announces itself every keepalive
// period, answers discovery and address queries and keeps a directory of
// the devices it hears. With -interactive it also opens a shell for
// locating devices and sending commands by hand.
//
// Usage:
//
//	hiqnet-node [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-name string          Device name
//	-serial string        Serial number (default: the name)
//	-address uint         Fixed device address (0 negotiates one)
//	-interface string     Network interface announced in DISCOINFO
//	-port int             HiQnet port (default 3804)
//	-broadcast string     Datagram destination for announcements (default 255.255.255.255)
//	-gateway string       Default gateway announced in DISCOINFO
//	-log-level string     debug, info, warn, error (default "info")
//	-log-format string    text or json (default "text")
//	-protocol-log string  CBOR protocol capture file
//	-hex-dump             Include raw frame bytes in debug logs
//	-metrics string       Listen address for Prometheus /metrics
//	-state string         File persisting the claimed address
//	-no-advertise         Do not publish the node over DNS-SD
//	-interactive          Start the interactive shell
//
// Examples:
//
//	# Join the network with a negotiated address
//	hiqnet-node -name FOH -serial SI-0001
//
//	# Fixed address, protocol capture and metrics
//	hiqnet-node -name Stage -address 1619 -protocol-log stage.hqlog -metrics :9380
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hiqontrol/hiqnet-go/cmd/hiqnet-node/interactive"
	"github.com/hiqontrol/hiqnet-go/pkg/config"
	"github.com/hiqontrol/hiqnet-go/pkg/discovery"
	"github.com/hiqontrol/hiqnet-go/pkg/log"
	"github.com/hiqontrol/hiqnet-go/pkg/metrics"
	"github.com/hiqontrol/hiqnet-go/pkg/node"
	"github.com/hiqontrol/hiqnet-go/pkg/persistence"
)

// flags holds command-line overrides. Only flags the user set replace
// values from the configuration file.
type flags struct {
	configFile  string
	name        string
	serial      string
	address     uint
	iface       string
	port        int
	broadcast   string
	gateway     string
	logLevel    string
	logFormat   string
	protocolLog string
	hexDump     bool
	metrics     string
	state       string
	noAdvertise bool
	interactive bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*flags, error) {
	f := &flags{}
	fs.StringVar(&f.configFile, "config", "", "Configuration file path")
	fs.StringVar(&f.name, "name", "", "Device name")
	fs.StringVar(&f.serial, "serial", "", "Serial number (default: the name)")
	fs.UintVar(&f.address, "address", 0, "Fixed device address (0 negotiates one)")
	fs.StringVar(&f.iface, "interface", "", "Network interface announced in DISCOINFO")
	fs.IntVar(&f.port, "port", 3804, "HiQnet port")
	fs.StringVar(&f.broadcast, "broadcast", "255.255.255.255", "Datagram destination for announcements")
	fs.StringVar(&f.gateway, "gateway", "", "Default gateway announced in DISCOINFO")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "text", "Log format: text or json")
	fs.StringVar(&f.protocolLog, "protocol-log", "", "CBOR protocol capture file")
	fs.BoolVar(&f.hexDump, "hex-dump", false, "Include raw frame bytes in debug logs")
	fs.StringVar(&f.metrics, "metrics", "", "Listen address for Prometheus /metrics")
	fs.StringVar(&f.state, "state", "", "File persisting the claimed address")
	fs.BoolVar(&f.noAdvertise, "no-advertise", false, "Do not publish the node over DNS-SD")
	fs.BoolVar(&f.interactive, "interactive", false, "Start the interactive shell")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// loadConfig reads the configuration file, if any, and applies the flags
// that were set explicitly.
func loadConfig(fs *flag.FlagSet, f *flags) (*config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "name":
			cfg.Device.Name = f.name
		case "serial":
			cfg.Device.SerialNumber = f.serial
		case "address":
			cfg.Device.Address = uint16(f.address)
		case "interface":
			cfg.Network.Interface = f.iface
		case "port":
			cfg.Network.Port = f.port
		case "broadcast":
			cfg.Network.Broadcast = f.broadcast
		case "gateway":
			cfg.Network.Gateway = f.gateway
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-format":
			cfg.Log.Format = f.logFormat
		case "protocol-log":
			cfg.Log.ProtocolLog = f.protocolLog
		case "hex-dump":
			cfg.Log.HexDump = f.hexDump
		case "metrics":
			cfg.Metrics.Listen = f.metrics
		case "state":
			cfg.Node.StatePath = f.state
		case "no-advertise":
			cfg.Discovery.Advertise = !f.noAdvertise
		}
	})

	if f.address > 0xFFFF {
		return nil, fmt.Errorf("%w: address %d out of range", config.ErrInvalid, f.address)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, _ := config.ParseLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// protocolLogger combines the CBOR capture file and debug-level slog
// output. The returned closer flushes the capture.
func protocolLogger(cfg *config.Config, logger *slog.Logger) (log.Logger, io.Closer, error) {
	var slogOpts []log.SlogOption
	if cfg.Log.HexDump {
		slogOpts = append(slogOpts, log.WithHexDump())
	}
	adapter := log.NewSlogAdapter(logger, slogOpts...)

	if cfg.Log.ProtocolLog == "" {
		return adapter, nopCloser{}, nil
	}
	fl, err := log.NewFileLogger(cfg.Log.ProtocolLog)
	if err != nil {
		return nil, nil, fmt.Errorf("protocol log: %w", err)
	}
	return log.NewMultiLogger(fl, adapter), fl, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	f, err := parseFlags(fs, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	cfg, err := loadConfig(fs, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg, f.interactive); err != nil {
		fmt.Fprintf(os.Stderr, "hiqnet-node: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, interactiveMode bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var shell *interactive.Shell
	var out io.Writer = os.Stderr
	if interactiveMode {
		var err error
		shell, err = interactive.New()
		if err != nil {
			return err
		}
		out = shell.Stdout()
	}

	logger := newLogger(cfg, out)
	slog.SetDefault(logger)

	plog, closer, err := protocolLogger(cfg, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(metrics.WithRegistry(reg), metrics.WithNamespace(cfg.Metrics.Namespace))
	if cfg.Metrics.Listen != "" {
		go serveMetrics(ctx, cfg.Metrics.Listen, reg, logger)
	}

	network, err := node.ConfigNetwork(cfg.Network)
	if err != nil {
		logger.Warn("no interface details for DISCOINFO", "error", err)
	}

	opts := []node.Option{
		node.WithLogger(logger),
		node.WithProtocolLogger(plog),
		node.WithMetrics(m),
	}
	if cfg.Node.StatePath != "" {
		opts = append(opts, node.WithStateStore(persistence.NewNodeStateStore(cfg.Node.StatePath)))
	}
	if cfg.Discovery.Advertise {
		opts = append(opts, node.WithAdvertiser(discovery.NewAdvertiser(discovery.AdvertiserConfig{
			Interface: cfg.Network.Interface,
			TTL:       cfg.Discovery.TTL,
		})))
	}

	n, err := node.New(*cfg, network, opts...)
	if err != nil {
		return err
	}

	// The node gets its own context: Stop must still be able to send
	// GOODBYE after a signal cancels ctx.
	if err := n.Start(context.Background()); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	logger.Info("node started",
		"name", n.Device().Manager().Name,
		"address", n.Device().DeviceAddress(),
		"serial", n.Device().Manager().SerialNumber)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	if shell != nil {
		shell.Attach(n, discovery.NewBrowser(discovery.BrowserConfig{Interface: cfg.Network.Interface}))
		go shell.Run(ctx, cancel)
	}
	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := n.Stop(stopCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	if shell != nil {
		shell.Close()
	}
	logger.Info("stopped")
	return nil
}
