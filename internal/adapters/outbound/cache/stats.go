package cache

import "sync/atomic"

// Stats counts lookups; Fetch counts a refetch as a miss.
type Stats struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewStats() *Stats { return &Stats{} }

func (s *Stats) IncHit()  { s.hits.Add(1) }
func (s *Stats) IncMiss() { s.misses.Add(1) }

func (s *Stats) Snapshot() (hits uint64, misses uint64) {
	return s.hits.Load(), s.misses.Load()
}

// HitRatio is 0 before the first lookup.
func (s *Stats) HitRatio() float64 {
	h, m := s.Snapshot()
	if h+m == 0 {
		return 0
	}
	return float64(h) / float64(h+m)
}
