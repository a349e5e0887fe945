// Package device models the local HiQnet node: its device address, the
// device manager identity it announces, and its network information.
//
// A Device owns the sequence counter for every command it originates, so
// all builders in this package stamp commands with the device's address
// and the next sequence number.
package device
