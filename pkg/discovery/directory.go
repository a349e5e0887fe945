package discovery

import (
	"sort"
	"sync"
	"time"

	"github.com/hiqontrol/hiqnet-go/pkg/wire"
)

// DefaultExpiryFactor is how many keepalive periods a peer may stay silent
// before it is dropped from the directory.
const DefaultExpiryFactor = 3

// Peer is a remote device learned from a DISCOINFO announcement.
type Peer struct {
	Address        uint16
	SerialNumber   string
	RemoteAddr     string
	Cost           uint8
	MaxMessageSize uint32
	KeepAlive      time.Duration
	Network        wire.NetworkInfo
	FirstSeen      time.Time
	LastSeen       time.Time
}

// Directory tracks devices seen on the network, keyed by device address.
// It is safe for concurrent use.
type Directory struct {
	mu     sync.RWMutex
	peers  map[uint16]*Peer
	factor int
	now    func() time.Time
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		peers:  make(map[uint16]*Peer),
		factor: DefaultExpiryFactor,
		now:    time.Now,
	}
}

// Observe records an announcement received from remote. It reports whether
// the device was not known before.
func (d *Directory) Observe(info *wire.DiscoInfo, remote string) bool {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	p, known := d.peers[info.DeviceAddress]
	if !known {
		p = &Peer{Address: info.DeviceAddress, FirstSeen: now}
		d.peers[info.DeviceAddress] = p
	}
	p.SerialNumber = info.SerialNumber
	p.RemoteAddr = remote
	p.Cost = info.Cost
	p.MaxMessageSize = info.MaxMessageSize
	p.KeepAlive = time.Duration(info.KeepAliveMillis) * time.Millisecond
	p.Network = info.Network
	p.LastSeen = now
	return !known
}

// Lookup returns the peer with the given device address.
func (d *Directory) Lookup(address uint16) (Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.peers[address]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// LookupSerial returns the first peer announcing serial.
func (d *Directory) LookupSerial(serial string) (Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, p := range d.peers {
		if p.SerialNumber == serial {
			return *p, true
		}
	}
	return Peer{}, false
}

// Remove drops a peer, e.g. after it said GOODBYE.
func (d *Directory) Remove(address uint16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.peers[address]
	delete(d.peers, address)
	return ok
}

// Peers returns all known peers ordered by address.
func (d *Directory) Peers() []Peer {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Len returns the number of known peers.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}

// Expire removes peers that have been silent for longer than their
// keepalive period times the expiry factor, and returns them. A peer that
// announced no keepalive uses wire.DefaultKeepAlive.
func (d *Directory) Expire() []Peer {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	var expired []Peer
	for addr, p := range d.peers {
		ka := p.KeepAlive
		if ka <= 0 {
			ka = time.Duration(wire.DefaultKeepAlive) * time.Millisecond
		}
		if now.Sub(p.LastSeen) > ka*time.Duration(d.factor) {
			expired = append(expired, *p)
			delete(d.peers, addr)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].Address < expired[j].Address })
	return expired
}
