package connection

import (
	"sync"
	"testing"
)

func TestSequencer_Next(t *testing.T) {
	s := NewSequencer(0)

	if got := s.Next(); got != 1 {
		t.Errorf("Next() = %d, want 1", got)
	}
	if got := s.Next(); got != 2 {
		t.Errorf("Next() = %d, want 2", got)
	}
	if got := s.Current(); got != 2 {
		t.Errorf("Current() = %d, want 2", got)
	}
}

func TestSequencer_Start(t *testing.T) {
	s := NewSequencer(1000)
	if got := s.Next(); got != 1001 {
		t.Errorf("Next() = %d, want 1001", got)
	}
}

func TestSequencer_ConcurrentUnique(t *testing.T) {
	const (
		goroutines = 16
		perG       = 1000
	)
	s := NewSequencer(0)

	var wg sync.WaitGroup
	results := make([][]int64, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			ids := make([]int64, 0, perG)
			for i := 0; i < perG; i++ {
				ids = append(ids, s.Next())
			}
			results[g] = ids
		}(g)
	}
	wg.Wait()

	seen := make(map[int64]bool, goroutines*perG)
	for g, ids := range results {
		for i, id := range ids {
			if seen[id] {
				t.Fatalf("duplicate id %d", id)
			}
			seen[id] = true
			if i > 0 && id <= ids[i-1] {
				t.Errorf("goroutine %d: id %d not greater than %d", g, id, ids[i-1])
			}
		}
	}
	if got := s.Current(); got != goroutines*perG {
		t.Errorf("Current() = %d, want %d", got, goroutines*perG)
	}
}
