// Package node runs a HiQnet node: it owns the sockets, claims a device
// address, answers discovery and address queries, keeps a directory of
// peers and announces itself every keepalive period.
//
// Address claiming follows the REQADDR/ADDRUSED exchange. A candidate
// address is broadcast in a REQADDR; any device already holding it answers
// ADDRUSED (or is already known from its DISCOINFO), and the node backs off
// and tries a new random candidate. Silence for the claim timeout means
// the address is free.
package node
