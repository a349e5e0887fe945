// Package log captures HiQnet protocol traffic as structured events.
//
// Protocol capture is separate from operational logging (slog): every
// datagram, stream frame, decoded command, address change and decode
// failure becomes an Event that can be written to a binary capture file
// and inspected later with hiqnet-log.
//
// # Basic Usage
//
//	// Development: print events through slog at debug level
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// Capture to file
//	fl, _ := log.NewFileLogger("/var/log/hiqnet/node.hqlog")
//
//	// Both
//	logger := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with integer keys
// (.hqlog extension). Reader iterates them with optional filtering.
package log
