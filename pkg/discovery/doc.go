// Package discovery keeps track of HiQnet devices on the network.
//
// Devices announce themselves with DISCOINFO commands. A Directory records
// each announcement by device address and expires devices that stop
// announcing for several keepalive periods.
//
// Nodes can additionally publish themselves over DNS-SD (_hiqnet._udp) so
// tools on the same link can find them without sending HiQnet traffic.
// TXT records carry:
//
//	addr    device address (decimal, required)
//	serial  serial number (required)
//	name    device name
//	class   class name
//	ver     software version
package discovery
