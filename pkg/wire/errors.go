package wire

import "errors"

// Decode and encode errors.
var (
	// ErrFraming indicates a buffer whose length is inconsistent with the
	// header (too short, header length or command length mismatch).
	ErrFraming = errors.New("framing error")

	// ErrProtocol indicates a well-framed command using an unsupported
	// protocol version.
	ErrProtocol = errors.New("protocol error")

	// ErrUnknownMessageType indicates a message id or name that is not in
	// the registry.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrNotImplemented indicates a recognized protocol feature that this
	// package does not encode or decode.
	ErrNotImplemented = errors.New("not implemented")

	// ErrRange indicates a value outside its allowed range.
	ErrRange = errors.New("value out of range")

	// ErrInvalidArgument indicates a caller error.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ErrorKind returns a short label for the sentinel wrapped by err, for use
// in logs and metric labels. Unrecognized errors map to "other".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFraming):
		return "framing"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrNotImplemented):
		return "not_implemented"
	case errors.Is(err, ErrUnknownMessageType):
		return "unknown_message"
	case errors.Is(err, ErrRange):
		return "range"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "other"
	}
}
