// Package interactive provides the interactive command-line interface
// for hiqnet-node.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"

	"github.com/hiqontrol/hiqnet-go/pkg/discovery"
	"github.com/hiqontrol/hiqnet-go/pkg/node"
)

// Shell handles interactive mode for hiqnet-node.
type Shell struct {
	node    *node.Node
	browser *discovery.Browser
	rl      *readline.Instance
}

// New creates the shell. Attach must be called before Run.
func New() (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "hiqnet> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl}, nil
}

// Attach sets the node the commands operate on.
func (s *Shell) Attach(n *node.Node, b *discovery.Browser) {
	s.node = n
	s.browser = b
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Close releases the terminal.
func (s *Shell) Close() {
	s.rl.Close()
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		if s.Exec(ctx, line) {
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}
	}
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	return execute(ctx, s.node, s.browser, s.rl.Stdout(), line)
}

func execute(ctx context.Context, n *node.Node, b *discovery.Browser, w io.Writer, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		printHelp(w)
	case "status", "s":
		cmdStatus(n, w)
	case "peers", "p":
		cmdPeers(n, w)
	case "discover", "d":
		cmdDiscover(ctx, n, w)
	case "browse":
		cmdBrowse(ctx, b, w, args)
	case "locate", "l":
		cmdLocate(ctx, n, w, args)
	case "hello":
		cmdHello(ctx, n, w, args)
	case "vdlist":
		cmdVDList(ctx, n, w, args)
	case "name":
		cmdName(n, w, args)
	case "claim":
		cmdClaim(ctx, n, w)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	printHelp(s.rl.Stdout())
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, `
HiQnet Node Commands:
  Local device:
    status             - Show address, name and announcement stats
    name [new-name]    - Show or change the device name
    claim              - Re-run address negotiation

  Network:
    peers              - List devices heard on the network
    discover           - Broadcast a DISCOINFO query
    browse [seconds]   - List nodes advertised over DNS-SD
    locate <addr> on|off - Toggle a device's locate indicator
    hello <addr>       - Open a session with a device
    vdlist <addr> [wg] - Request a device's virtual device list

  General:
    help               - Show this help
    quit               - Exit node`)
}

func parseAddress(w io.Writer, args []string, usage string) (uint16, bool) {
	if len(args) < 1 {
		fmt.Fprintf(w, "Usage: %s\n", usage)
		return 0, false
	}
	v, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		fmt.Fprintf(w, "Invalid address %q: %v\n", args[0], err)
		return 0, false
	}
	return uint16(v), true
}

func cmdStatus(n *node.Node, w io.Writer) {
	m := n.Device().Manager()
	stats := n.AnnouncerStats()

	fmt.Fprintf(w, "Name:        %s\n", m.Name)
	fmt.Fprintf(w, "Class:       %s\n", m.ClassName)
	fmt.Fprintf(w, "Serial:      %s\n", m.SerialNumber)
	fmt.Fprintf(w, "Version:     %s\n", m.SoftwareVersion)
	fmt.Fprintf(w, "Address:     %d\n", n.Device().DeviceAddress())
	fmt.Fprintf(w, "Locating:    %v\n", n.Locating())
	fmt.Fprintf(w, "Peers:       %d\n", n.Directory().Len())
	fmt.Fprintf(w, "Announced:   %d (failed %d)\n", stats.Sent, stats.Failed)
	if !stats.LastSent.IsZero() {
		fmt.Fprintf(w, "Last sent:   %s ago\n", time.Since(stats.LastSent).Round(time.Second))
	}
	if stats.LastError != nil {
		fmt.Fprintf(w, "Last error:  %v\n", stats.LastError)
	}
}

func cmdPeers(n *node.Node, w io.Writer) {
	peers := n.Peers()
	if len(peers) == 0 {
		fmt.Fprintln(w, "No devices seen yet (try 'discover')")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tSERIAL\tREMOTE\tLAST SEEN")
	for _, p := range peers {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s ago\n",
			p.Address, p.SerialNumber, p.RemoteAddr, time.Since(p.LastSeen).Round(time.Second))
	}
	tw.Flush()
}

func cmdDiscover(ctx context.Context, n *node.Node, w io.Writer) {
	if err := n.Discover(ctx); err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(w, "DISCOINFO query sent; use 'peers' to see replies")
}

func cmdBrowse(ctx context.Context, b *discovery.Browser, w io.Writer, args []string) {
	if b == nil {
		fmt.Fprintln(w, "DNS-SD browsing not available")
		return
	}
	wait := 3 * time.Second
	if len(args) > 0 {
		secs, err := strconv.Atoi(args[0])
		if err != nil || secs <= 0 {
			fmt.Fprintf(w, "Invalid duration %q\n", args[0])
			return
		}
		wait = time.Duration(secs) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	services, err := b.Browse(ctx)
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}

	found := 0
	for svc := range services {
		found++
		fmt.Fprintf(w, "  %-24s address=%d serial=%s %s:%d\n",
			svc.InstanceName, svc.Address, svc.SerialNumber, svc.Host, svc.Port)
	}
	fmt.Fprintf(w, "%d node(s) found\n", found)
}

func cmdLocate(ctx context.Context, n *node.Node, w io.Writer, args []string) {
	const usage = "locate <address> on|off"
	addr, ok := parseAddress(w, args, usage)
	if !ok {
		return
	}
	on := true
	if len(args) > 1 {
		switch strings.ToLower(args[1]) {
		case "on":
		case "off":
			on = false
		default:
			fmt.Fprintf(w, "Usage: %s\n", usage)
			return
		}
	}
	if err := n.Locate(ctx, addr, on); err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	state := "on"
	if !on {
		state = "off"
	}
	fmt.Fprintf(w, "Locate %s sent to %d\n", state, addr)
}

func cmdHello(ctx context.Context, n *node.Node, w io.Writer, args []string) {
	addr, ok := parseAddress(w, args, "hello <address>")
	if !ok {
		return
	}
	sn, err := n.Hello(ctx, addr)
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "HELLO sent to %d (session %d)\n", addr, sn)
}

func cmdVDList(ctx context.Context, n *node.Node, w io.Writer, args []string) {
	addr, ok := parseAddress(w, args, "vdlist <address> [workgroup]")
	if !ok {
		return
	}
	wg := ""
	if len(args) > 1 {
		wg = args[1]
	}
	if err := n.GetVDList(ctx, addr, wg); err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "GETVDLIST sent to %d\n", addr)
}

func cmdName(n *node.Node, w io.Writer, args []string) {
	if len(args) == 0 {
		fmt.Fprintf(w, "Name: %s\n", n.Device().Manager().Name)
		return
	}
	name := strings.Join(args, " ")
	n.SetName(name)
	fmt.Fprintf(w, "Name set to %q\n", name)
}

func cmdClaim(ctx context.Context, n *node.Node, w io.Writer) {
	before := n.Device().DeviceAddress()
	if err := n.ClaimAddress(ctx); err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Address %d -> %d\n", before, n.Device().DeviceAddress())
}
