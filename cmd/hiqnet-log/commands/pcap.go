package commands

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/uuid"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
	"github.com/hiqontrol/hiqnet-go/pkg/transport"
	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// PcapOptions describes the local side of a capture.
type PcapOptions struct {
	// LocalIP is the address of the capturing node. On export it is the
	// IP written for the local end of every packet; on import packets sent
	// from it are logged as outbound. Empty on import logs everything as
	// inbound.
	LocalIP string

	// Port is the HiQnet port (default 3804).
	Port int
}

func (o PcapOptions) port() int {
	if o.Port <= 0 {
		return wire.Port
	}
	return o.Port
}

// PcapResult summarizes a conversion.
type PcapResult struct {
	Packets int
	Events  int
	Skipped int
}

var (
	localMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	remoteMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// RunPcapExport writes the raw frames of a capture to a pcap file that
// Wireshark can open. Frames that were truncated when logged, or whose
// remote is not IPv4, are skipped.
func RunPcapExport(path, output string, opts PcapOptions) (PcapResult, error) {
	var res PcapResult

	localIP := net.ParseIP(opts.LocalIP).To4()
	if localIP == nil {
		return res, fmt.Errorf("invalid local IPv4 address: %q", opts.LocalIP)
	}

	reader, err := log.NewFilteredReader(path, log.Filter{Layer: ptr(log.LayerTransport)})
	if err != nil {
		return res, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	f, err := os.Create(output)
	if err != nil {
		return res, fmt.Errorf("failed to create pcap file: %w", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return res, fmt.Errorf("failed to write pcap header: %w", err)
	}

	// Next TCP sequence number per direction of each flow.
	seqs := make(map[string]uint32)

	err = eachEvent(reader, func(event log.Event) error {
		res.Events++
		frame := event.Frame
		if frame == nil || len(frame.Data) == 0 || frame.Truncated {
			res.Skipped++
			return nil
		}
		host, portStr, err := net.SplitHostPort(event.RemoteAddr)
		if err != nil {
			res.Skipped++
			return nil
		}
		remoteIP := net.ParseIP(host).To4()
		remotePort, err := strconv.Atoi(portStr)
		if remoteIP == nil || err != nil {
			res.Skipped++
			return nil
		}

		ep := packetEnds{
			srcIP: remoteIP, dstIP: localIP,
			srcPort: remotePort, dstPort: opts.port(),
			srcMAC: remoteMAC, dstMAC: localMAC,
		}
		if event.Direction == log.DirectionOut {
			ep = ep.reverse()
		}

		var seq uint32
		if event.Channel == log.ChannelTCP {
			key := ep.String()
			seq = seqs[key]
			if seq == 0 {
				seq = 1
			}
			seqs[key] = seq + uint32(len(frame.Data))
		}

		if err := writePacket(w, frame.Data, ep, event.Channel, seq, event.Timestamp); err != nil {
			return fmt.Errorf("failed to write packet: %w", err)
		}
		res.Packets++
		return nil
	})
	return res, err
}

type packetEnds struct {
	srcIP, dstIP     net.IP
	srcPort, dstPort int
	srcMAC, dstMAC   net.HardwareAddr
}

func (p packetEnds) reverse() packetEnds {
	return packetEnds{
		srcIP: p.dstIP, dstIP: p.srcIP,
		srcPort: p.dstPort, dstPort: p.srcPort,
		srcMAC: p.dstMAC, dstMAC: p.srcMAC,
	}
}

func (p packetEnds) String() string {
	return net.JoinHostPort(p.srcIP.String(), strconv.Itoa(p.srcPort)) + ">" +
		net.JoinHostPort(p.dstIP.String(), strconv.Itoa(p.dstPort))
}

// writePacket wraps data in Ethernet, IPv4 and UDP or TCP headers.
func writePacket(w *pcapgo.Writer, data []byte, ep packetEnds, ch log.Channel, seq uint32, ts time.Time) error {
	ethernet := &layers.Ethernet{
		SrcMAC:       ep.srcMAC,
		DstMAC:       ep.dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4,
		IHL:     5,
		TTL:     64,
		SrcIP:   ep.srcIP,
		DstIP:   ep.dstIP,
	}

	var transportLayer gopacket.SerializableLayer
	if ch == log.ChannelTCP {
		ip.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(ep.srcPort),
			DstPort: layers.TCPPort(ep.dstPort),
			Seq:     seq,
			ACK:     true,
			PSH:     true,
			Window:  65535,
		}
		tcp.SetNetworkLayerForChecksum(ip)
		transportLayer = tcp
	} else {
		ip.Protocol = layers.IPProtocolUDP
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(ep.srcPort),
			DstPort: layers.UDPPort(ep.dstPort),
		}
		udp.SetNetworkLayerForChecksum(ip)
		transportLayer = udp
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, ethernet, ip, transportLayer, gopacket.Payload(data)); err != nil {
		return err
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	return w.WritePacket(ci, buf.Bytes())
}

// RunPcapImport converts HiQnet traffic in a pcap file into a protocol
// capture: one frame event per command plus its decoded message or decode
// error. TCP payloads are reassembled per flow; commands split across
// segments are joined using the command length field.
func RunPcapImport(path, output string, opts PcapOptions) (PcapResult, error) {
	var res PcapResult

	f, err := os.Open(path)
	if err != nil {
		return res, fmt.Errorf("failed to open pcap file: %w", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return res, fmt.Errorf("failed to read pcap header: %w", err)
	}

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return res, fmt.Errorf("failed to create output file: %w", err)
	}
	defer logger.Close()

	imp := &importer{
		logger:  logger,
		port:    opts.port(),
		localIP: opts.LocalIP,
		streams: make(map[string][]byte),
	}

	for {
		data, ci, err := r.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("failed to read packet: %w", err)
		}
		res.Packets++
		pkt := gopacket.NewPacket(data, r.LinkType(), gopacket.Default)
		if !imp.packet(pkt, ci.Timestamp) {
			res.Skipped++
		}
	}
	res.Events = imp.events
	return res, logger.Close()
}

type importer struct {
	logger  log.Logger
	port    int
	localIP string
	streams map[string][]byte
	events  int
}

// packet logs the HiQnet commands in pkt and reports whether it carried
// HiQnet traffic.
func (imp *importer) packet(pkt gopacket.Packet, ts time.Time) bool {
	netLayer := pkt.NetworkLayer()
	if netLayer == nil {
		return false
	}
	srcIP, dstIP := netLayer.NetworkFlow().Endpoints()

	if l := pkt.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		if int(udp.SrcPort) != imp.port && int(udp.DstPort) != imp.port {
			return false
		}
		src := net.JoinHostPort(srcIP.String(), strconv.Itoa(int(udp.SrcPort)))
		dst := net.JoinHostPort(dstIP.String(), strconv.Itoa(int(udp.DstPort)))
		imp.command(udp.Payload, log.ChannelUDP, transport.UDPConnID, srcIP.String(), src, dst, ts)
		return true
	}

	if l := pkt.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		if int(tcp.SrcPort) != imp.port && int(tcp.DstPort) != imp.port {
			return false
		}
		src := net.JoinHostPort(srcIP.String(), strconv.Itoa(int(tcp.SrcPort)))
		dst := net.JoinHostPort(dstIP.String(), strconv.Itoa(int(tcp.DstPort)))
		if len(tcp.Payload) == 0 {
			return true
		}

		key := src + ">" + dst
		frames, rest := splitFrames(append(imp.streams[key], tcp.Payload...))
		imp.streams[key] = rest
		connID := flowID(src, dst)
		for _, frame := range frames {
			imp.command(frame, log.ChannelTCP, connID, srcIP.String(), src, dst, ts)
		}
		return true
	}
	return false
}

func (imp *importer) command(data []byte, ch log.Channel, connID, srcIP, src, dst string, ts time.Time) {
	dir, remote := log.DirectionIn, src
	if imp.localIP != "" && srcIP == imp.localIP {
		dir, remote = log.DirectionOut, dst
	}

	imp.log(log.Event{
		Timestamp:    ts,
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Channel:      ch,
		RemoteAddr:   remote,
		Frame: &log.FrameEvent{
			Size: len(data),
			Data: append([]byte(nil), data...),
		},
	})

	event := log.Event{
		Timestamp:    ts,
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Channel:      ch,
		RemoteAddr:   remote,
	}
	cmd, err := wire.DecodeCommand(data)
	if err != nil {
		event.Category = log.CategoryError
		event.Error = &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Kind:    wire.ErrorKind(err),
			Context: "decode",
		}
	} else {
		event.Message = log.NewMessageEvent(cmd)
	}
	imp.log(event)
}

func (imp *importer) log(event log.Event) {
	imp.logger.Log(event)
	imp.events++
}

// splitFrames cuts complete commands off the front of buf. A length field
// below the header size means the stream is not HiQnet or lost sync; the
// buffer is dropped.
func splitFrames(buf []byte) (frames [][]byte, rest []byte) {
	for len(buf) >= transport.PrefixSize {
		n, err := transport.FrameLength(buf, wire.MaxMessageSize)
		if err != nil {
			return frames, nil
		}
		if uint32(len(buf)) < n {
			break
		}
		frames = append(frames, buf[:n:n])
		buf = buf[n:]
	}
	return frames, append([]byte(nil), buf...)
}

// flowID names a TCP connection the same way from both ends.
func flowID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("tcp://"+a+"/"+b)).String()
}

func ptr[T any](v T) *T { return &v }
