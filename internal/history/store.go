// Package history keeps a bounded ring of recent enrollment outcomes.
package history

import (
	"sync"
	"time"

	"autoenroll/internal/model"
)

type Store struct {
	mu    sync.RWMutex
	buf   []model.EnrollmentRecord
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(rec model.EnrollmentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, rec)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = rec
}

func (s *Store) List(limit int) []model.EnrollmentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.EnrollmentRecord, 0, limit)
	start := len(s.buf) - limit
	for i := start; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

func (s *Store) Since(ts time.Time) []model.EnrollmentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.EnrollmentRecord, 0)
	for _, rec := range s.buf {
		if !rec.Timestamp.Before(ts) {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
