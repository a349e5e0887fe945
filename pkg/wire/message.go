package wire

import (
	"encoding/binary"
	"fmt"
)

// MessageTypeSize is the encoded size of a message id.
const MessageTypeSize = 2

// MessageType identifies the command carried by a HiQnet message.
type MessageType uint16

// Message types.
const (
	// Network management.
	MsgDiscoInfo      MessageType = 0x0000
	MsgGetNetInfo     MessageType = 0x0002
	MsgRequestAddress MessageType = 0x0004
	MsgAddressUsed    MessageType = 0x0005
	MsgSetAddress     MessageType = 0x0006
	MsgGoodbye        MessageType = 0x0007
	MsgHello          MessageType = 0x0008

	// Parameters and attributes.
	MsgMultiParamSet         MessageType = 0x0100
	MsgMultiObjParamSet      MessageType = 0x0101
	MsgParamSetPercent       MessageType = 0x0102
	MsgMultiParamGet         MessageType = 0x0103
	MsgGetAttributes         MessageType = 0x010D
	MsgSetAttributes         MessageType = 0x010E // non-standard
	MsgMultiParamSubscribe   MessageType = 0x010F
	MsgParamSubscribePercent MessageType = 0x0111
	MsgMultiParamUnsubscribe MessageType = 0x0112
	MsgParamSubscribeAll     MessageType = 0x0113
	MsgParamUnsubscribeAll   MessageType = 0x0114

	// Event log, virtual devices, presets and identification.
	MsgSubscribeEventLog   MessageType = 0x0115
	MsgGetVDList           MessageType = 0x011A
	MsgStore               MessageType = 0x0124
	MsgRecall              MessageType = 0x0125
	MsgLocate              MessageType = 0x0129
	MsgUnsubscribeEventLog MessageType = 0x012B
	MsgRequestEventLog     MessageType = 0x012C
)

var messageTypeNames = map[MessageType]string{
	MsgDiscoInfo:             "DISCOINFO",
	MsgGetNetInfo:            "GETNETINFO",
	MsgRequestAddress:        "REQADDR",
	MsgAddressUsed:           "ADDRUSED",
	MsgSetAddress:            "SETADDR",
	MsgGoodbye:               "GOODBYE",
	MsgHello:                 "HELLO",
	MsgMultiParamSet:         "MULTPARMSET",
	MsgMultiObjParamSet:      "MULTOBJPARMSET",
	MsgParamSetPercent:       "PARMSETPCT",
	MsgMultiParamGet:         "MULTPARMGET",
	MsgGetAttributes:         "GETATTR",
	MsgSetAttributes:         "SETATTR",
	MsgMultiParamSubscribe:   "MULTPARMSUB",
	MsgParamSubscribePercent: "PARMSUBPCT",
	MsgMultiParamUnsubscribe: "MULTPARMUNSUB",
	MsgParamSubscribeAll:     "PARMSUBALL",
	MsgParamUnsubscribeAll:   "PARMUNSUBALL",
	MsgSubscribeEventLog:     "SUBEVTLOGMSGS",
	MsgGetVDList:             "GETVDLIST",
	MsgStore:                 "STORE",
	MsgRecall:                "RECALL",
	MsgLocate:                "LOCATE",
	MsgUnsubscribeEventLog:   "UNSUBEVTLOGMSGS",
	MsgRequestEventLog:       "REQEVTLOG",
}

var messageTypesByName = func() map[string]MessageType {
	m := make(map[string]MessageType, len(messageTypeNames))
	for mt, name := range messageTypeNames {
		m[name] = mt
	}
	return m
}()

// MessageTypes returns every registered message type.
func MessageTypes() []MessageType {
	out := make([]MessageType, 0, len(messageTypeNames))
	for mt := range messageTypeNames {
		out = append(out, mt)
	}
	return out
}

// MessageTypeByID looks up a registered message type by its numeric id.
func MessageTypeByID(id uint16) (MessageType, error) {
	mt := MessageType(id)
	if !mt.IsValid() {
		return mt, fmt.Errorf("%w: id 0x%04x", ErrUnknownMessageType, id)
	}
	return mt, nil
}

// MessageTypeByName looks up a registered message type by its symbolic name.
func MessageTypeByName(name string) (MessageType, error) {
	mt, ok := messageTypesByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: name %q", ErrUnknownMessageType, name)
	}
	return mt, nil
}

// LookupMessageType resolves a message type from exactly one of an id or a
// name. Passing both, or neither, is an ErrInvalidArgument.
func LookupMessageType(id *uint16, name string) (MessageType, error) {
	switch {
	case id != nil && name != "":
		return 0, fmt.Errorf("%w: both id and name given", ErrInvalidArgument)
	case id != nil:
		return MessageTypeByID(*id)
	case name != "":
		return MessageTypeByName(name)
	default:
		return 0, fmt.Errorf("%w: id or name required", ErrInvalidArgument)
	}
}

// ParseMessageType decodes a 2-byte message id. The returned error wraps
// ErrUnknownMessageType for unregistered ids; the raw value is still
// returned so callers can keep the command.
func ParseMessageType(b []byte) (MessageType, error) {
	if len(b) != MessageTypeSize {
		return 0, fmt.Errorf("%w: message id requires %d bytes, got %d", ErrFraming, MessageTypeSize, len(b))
	}
	return MessageTypeByID(binary.BigEndian.Uint16(b))
}

// IsValid reports whether the message type is registered.
func (m MessageType) IsValid() bool {
	_, ok := messageTypeNames[m]
	return ok
}

// Encode returns the 2-byte big-endian id.
func (m MessageType) Encode() []byte {
	return binary.BigEndian.AppendUint16(make([]byte, 0, MessageTypeSize), uint16(m))
}

// String returns the symbolic name, or UNKNOWN(0xNNNN).
func (m MessageType) String() string {
	if name, ok := messageTypeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%04x)", uint16(m))
}
