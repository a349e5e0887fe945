package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records advertised for a node.
func EncodeTXT(info *NodeInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyAddress: strconv.FormatUint(uint64(info.Address), 10),
		TXTKeySerial:  info.SerialNumber,
	}
	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}
	if info.ClassName != "" {
		txt[TXTKeyClass] = info.ClassName
	}
	if info.SoftwareVersion != "" {
		txt[TXTKeyVersion] = info.SoftwareVersion
	}
	return txt
}

// DecodeTXT parses the TXT records of a node. The address must be a valid
// device address.
func DecodeTXT(txt TXTRecordMap) (*NodeInfo, error) {
	addrStr, ok := txt[TXTKeyAddress]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyAddress)
	}
	addr, err := strconv.ParseUint(addrStr, 10, 16)
	if err != nil || !wire.ValidDeviceAddress(uint16(addr)) {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyAddress, addrStr)
	}

	serial, ok := txt[TXTKeySerial]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeySerial)
	}

	return &NodeInfo{
		Address:         uint16(addr),
		SerialNumber:    serial,
		Name:            txt[TXTKeyName],
		ClassName:       txt[TXTKeyClass],
		SoftwareVersion: txt[TXTKeyVersion],
	}, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings,
// sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

// instanceName picks the advertised instance label for info.
func instanceName(info *NodeInfo) string {
	name := info.InstanceName
	if name == "" {
		name = info.Name
	}
	if name == "" {
		name = fmt.Sprintf("HiQnet-%d", info.Address)
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}
