// Package stats keeps per-stream pipeline outcome counters for the API.
package stats

import (
	"sync"
	"time"
)

type Outcome string

const (
	Received           Outcome = "received"
	NoMapping          Outcome = "no_mapping"
	RejectedAttributes Outcome = "rejected_attributes"
	RejectedGeometry   Outcome = "rejected_geometry"
	Debounced          Outcome = "debounced"
	Aggregated         Outcome = "aggregated"
	Enrolled           Outcome = "enrolled"
	Duplicate          Outcome = "duplicate"
	Failed             Outcome = "failed"
)

type Counters struct {
	Received           uint64 `json:"received"`
	NoMapping          uint64 `json:"no_mapping"`
	RejectedAttributes uint64 `json:"rejected_attributes"`
	RejectedGeometry   uint64 `json:"rejected_geometry"`
	Debounced          uint64 `json:"debounced"`
	Aggregated         uint64 `json:"aggregated"`
	Enrolled           uint64 `json:"enrolled"`
	Duplicates         uint64 `json:"duplicates"`
	Failures           uint64 `json:"failures"`
}

type Store struct {
	mu        sync.RWMutex
	byStream  map[string]*Counters
	updatedAt map[string]time.Time
	limit     int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byStream:  make(map[string]*Counters),
		updatedAt: make(map[string]time.Time),
		limit:     limit,
	}
}

func (s *Store) Add(streamID string, outcome Outcome) {
	if streamID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byStream[streamID]
	if !ok {
		c = &Counters{}
		s.byStream[streamID] = c
	}
	switch outcome {
	case Received:
		c.Received++
	case NoMapping:
		c.NoMapping++
	case RejectedAttributes:
		c.RejectedAttributes++
	case RejectedGeometry:
		c.RejectedGeometry++
	case Debounced:
		c.Debounced++
	case Aggregated:
		c.Aggregated++
	case Enrolled:
		c.Enrolled++
	case Duplicate:
		c.Duplicates++
	case Failed:
		c.Failures++
	}
	s.updatedAt[streamID] = time.Now().UTC()
	if len(s.byStream) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(streamID string) (Counters, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byStream[streamID]
	if !ok {
		return Counters{}, time.Time{}, false
	}
	return *c, s.updatedAt[streamID], true
}

func (s *Store) GetAll() map[string]Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Counters, len(s.byStream))
	for streamID, c := range s.byStream {
		out[streamID] = *c
	}
	return out
}

func (s *Store) evictOldest() {
	var oldestStream string
	var oldest time.Time
	for stream, ts := range s.updatedAt {
		if oldestStream == "" || ts.Before(oldest) {
			oldestStream = stream
			oldest = ts
		}
	}
	if oldestStream != "" {
		delete(s.byStream, oldestStream)
		delete(s.updatedAt, oldestStream)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byStream = make(map[string]*Counters)
	s.updatedAt = make(map[string]time.Time)
}
