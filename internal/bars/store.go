package bars

import (
	"math"
	"time"

	"github.com/rickgao/market-scout/internal/model"
)

// slot holds the state of one request.
type slot struct {
	instrument string
	barSize    string
	size       *BarSize // parsed lazily from barSize

	pending   []model.BarRecord
	committed []model.BarRecord
	finalized bool
}

// lastTime returns the last known timestamp, searching the pending buffer
// before the committed table.
func (s *slot) lastTime() (time.Time, bool) {
	if n := len(s.pending); n > 0 {
		return s.pending[n-1].Time, true
	}
	if n := len(s.committed); n > 0 {
		return s.committed[n-1].Time, true
	}
	return time.Time{}, false
}

// lastValue returns the last non-NaN value of f.
func (s *slot) lastValue(f model.Field) (float64, bool) {
	for i := len(s.pending) - 1; i >= 0; i-- {
		if v := s.pending[i].Value(f); !math.IsNaN(v) {
			return v, true
		}
	}
	for i := len(s.committed) - 1; i >= 0; i-- {
		if v := s.committed[i].Value(f); !math.IsNaN(v) {
			return v, true
		}
	}
	return 0, false
}

func (s *slot) flush() bool {
	if len(s.pending) == 0 {
		return false
	}
	s.committed = append(s.committed, s.pending...)
	s.pending = s.pending[:0]
	return true
}

// RequestStore maps request ids to their buffer and committed table.
// It is not safe for concurrent use; the Cache serializes access.
type RequestStore struct {
	slots map[int64]*slot
}

// NewRequestStore creates an empty store.
func NewRequestStore() *RequestStore {
	return &RequestStore{slots: make(map[int64]*slot)}
}

// acquire returns the slot for id, creating it if needed.
func (rs *RequestStore) acquire(id int64) *slot {
	s, ok := rs.slots[id]
	if !ok {
		s = &slot{}
		rs.slots[id] = s
	}
	return s
}

func (rs *RequestStore) lookup(id int64) (*slot, bool) {
	s, ok := rs.slots[id]
	return s, ok
}

func (rs *RequestStore) release(id int64) bool {
	if _, ok := rs.slots[id]; !ok {
		return false
	}
	delete(rs.slots, id)
	return true
}

// Len returns the number of live slots.
func (rs *RequestStore) Len() int {
	return len(rs.slots)
}
