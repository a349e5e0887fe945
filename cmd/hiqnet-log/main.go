// Command hiqnet-log views and converts HiQnet protocol captures.
//
// Captures are written by hiqnet-node with -protocol-log.
//
// Usage:
//
//	hiqnet-log <command> [flags] <file.hqlog>
//
// Commands:
//
//	view     View a capture in human-readable format
//	stats    Show statistics about a capture
//	export   Export a capture to JSONL or CSV
//	filter   Write the matching events to a new capture
//	pcap     Convert between captures and pcap files
//
// Examples:
//
//	# View only address negotiation
//	hiqnet-log view --message REQADDR node.hqlog
//
//	# Export inbound wire events as JSONL
//	hiqnet-log export --layer wire --direction in node.hqlog
//
//	# Open the raw traffic in Wireshark
//	hiqnet-log pcap export --local-ip 192.168.1.5 -o node.pcap node.hqlog
//
//	# Decode a pcap taken with tcpdump
//	hiqnet-log pcap import -o tap.hqlog tap.pcap
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hiqontrol/hiqnet-go/cmd/hiqnet-log/commands"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hiqnet-log",
		Short:         "HiQnet protocol log analyzer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		viewCmd(),
		statsCmd(),
		exportCmd(),
		filterCmd(),
		pcapCmd(),
	)
	return root
}

func addFilterFlags(cmd *cobra.Command, opts *commands.FilterOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, device)")
	f.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	f.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")
	f.StringVar(&opts.Channel, "channel", "", "Filter by channel (udp, tcp)")
	f.StringVar(&opts.Message, "message", "", "Filter by message name (e.g. DISCOINFO)")
	f.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	f.StringVar(&opts.Device, "device", "", "Filter by HiQnet device address")
	f.StringVar(&opts.TimeStart, "time-start", "", "Only events at or after this RFC3339 time")
	f.StringVar(&opts.TimeEnd, "time-end", "", "Only events before this RFC3339 time")
}

func viewCmd() *cobra.Command {
	var opts commands.FilterOptions
	cmd := &cobra.Command{
		Use:   "view [flags] <file.hqlog>",
		Short: "View a capture in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunView(args[0], opts, cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd, &opts)
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file.hqlog>",
		Short: "Show statistics about a capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunStats(args[0], cmd.OutOrStdout())
		},
	}
}

func exportCmd() *cobra.Command {
	var (
		opts   commands.FilterOptions
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export [flags] <file.hqlog>",
		Short: "Export a capture to JSONL or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunExport(args[0], format, output, opts)
		},
	}
	cmd.Flags().StringVar(&format, "format", "jsonl", "Output format (jsonl, csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	addFilterFlags(cmd, &opts)
	return cmd
}

func filterCmd() *cobra.Command {
	var (
		opts   commands.FilterOptions
		output string
	)
	cmd := &cobra.Command{
		Use:   "filter [flags] <file.hqlog>",
		Short: "Write the matching events to a new capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := commands.RunFilter(args[0], output, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d events to %s\n", n, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (required)")
	_ = cmd.MarkFlagRequired("output")
	addFilterFlags(cmd, &opts)
	return cmd
}

func pcapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pcap",
		Short: "Convert between captures and pcap files",
	}

	var exportOpts commands.PcapOptions
	var exportOut string
	export := &cobra.Command{
		Use:   "export [flags] <file.hqlog>",
		Short: "Write the raw frames of a capture to a pcap file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := commands.RunPcapExport(args[0], exportOut, exportOpts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d packets to %s (%d events skipped)\n",
				res.Packets, exportOut, res.Skipped)
			return nil
		},
	}
	export.Flags().StringVarP(&exportOut, "output", "o", "", "Output pcap file (required)")
	export.Flags().StringVar(&exportOpts.LocalIP, "local-ip", "10.0.0.1", "IPv4 address of the capturing node")
	export.Flags().IntVar(&exportOpts.Port, "port", 3804, "HiQnet port")
	_ = export.MarkFlagRequired("output")

	var importOpts commands.PcapOptions
	var importOut string
	imp := &cobra.Command{
		Use:   "import [flags] <file.pcap>",
		Short: "Decode HiQnet traffic in a pcap file into a capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := commands.RunPcapImport(args[0], importOut, importOpts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Read %d packets, wrote %d events to %s (%d packets skipped)\n",
				res.Packets, res.Events, importOut, res.Skipped)
			return nil
		},
	}
	imp.Flags().StringVarP(&importOut, "output", "o", "", "Output capture file (required)")
	imp.Flags().StringVar(&importOpts.LocalIP, "local-ip", "", "Packets from this IP are logged as outbound")
	imp.Flags().IntVar(&importOpts.Port, "port", 3804, "HiQnet port")
	_ = imp.MarkFlagRequired("output")

	cmd.AddCommand(export, imp)
	return cmd
}
