// Package wire implements the HiQnet binary wire format.
//
// Every HiQnet command starts with a 25-byte fixed header, optionally
// followed by extension headers whose presence is signalled by flag bits,
// followed by a message-specific payload. All multi-byte fields are
// big-endian.
//
// # Header Layout
//
//	offset  size  field
//	0       1     version (1-3, currently 2)
//	1       1     header length (25 + optional headers)
//	2       4     command length (header + payload)
//	6       6     source address
//	12      6     destination address
//	18      2     message id
//	20      2     flags
//	22      1     hop counter
//	23      2     sequence number
//	25      var   optional headers: error, multi-part, session (in that order)
//	hdrlen  var   payload
//
// # Addressing
//
// A fully qualified address is 16 bits of device address, 8 bits of virtual
// device address and 24 bits of object address. Device address 65535 is the
// broadcast address; 0 is never assigned.
//
// # Errors
//
// Decode failures wrap one of the sentinel errors (ErrFraming, ErrProtocol,
// ErrNotImplemented, ...) so callers can tell a malformed buffer apart from
// a well-formed command that uses a feature this package does not support.
// An unknown message id is not an error: the command decodes with its raw
// payload and MessageType.IsValid reports false.
package wire
