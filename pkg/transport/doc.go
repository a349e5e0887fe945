// Package transport moves HiQnet commands over the network.
//
// HiQnet uses port 3804 for both of its channels:
//
//	┌──────────────────────────────────────────────┐
//	│              HiQnet commands                 │
//	├──────────────────────┬───────────────────────┤
//	│  UDP (datagram)      │  TCP (stream)         │
//	│  default, broadcast  │  Guaranteed flag set  │
//	└──────────────────────┴───────────────────────┘
//
// A Dispatcher picks the channel from the command's Guaranteed flag and
// decodes inbound packets, handing well-formed commands to a Handler.
// Commands are self-delimiting on the stream channel: the command length
// field in the header covers the whole command, so no extra framing is
// added.
//
// No acknowledgement tracking or retransmission happens here. A failed
// decode drops that one packet; the receive loops keep running.
package transport
