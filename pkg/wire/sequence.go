package wire

import "sync/atomic"

// Sequence hands out command sequence numbers. The zero value starts at 0
// and wraps modulo 65536. It is safe for concurrent use.
type Sequence struct {
	next atomic.Uint32
}

// NewSequence returns a counter whose first number is start.
func NewSequence(start uint16) *Sequence {
	s := &Sequence{}
	s.next.Store(uint32(start))
	return s
}

// Next returns the current number and advances the counter.
func (s *Sequence) Next() uint16 {
	return uint16(s.next.Add(1) - 1)
}

// Peek returns the number the next call to Next will return.
func (s *Sequence) Peek() uint16 {
	return uint16(s.next.Load())
}
