package connection

import "sync/atomic"

// Sequencer issues strictly increasing request ids. It is safe for
// concurrent use.
type Sequencer struct {
	last atomic.Int64
}

// NewSequencer creates a sequencer whose first id is start+1.
func NewSequencer(start int64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns a fresh id.
func (s *Sequencer) Next() int64 {
	return s.last.Add(1)
}

// Current returns the last issued id.
func (s *Sequencer) Current() int64 {
	return s.last.Load()
}
