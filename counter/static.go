package counter

import (
	"context"
	"sync"
)

// StaticCollector serves fixed tables. Err, if set, is returned for every read.
type StaticCollector struct {
	mu     sync.Mutex
	tables Tables
	Err    error
	reads  int
	resets int
}

func NewStaticCollector(t Tables) *StaticCollector {
	return &StaticCollector{tables: t}
}

func (s *StaticCollector) ReadCounters(ctx context.Context, d Direction) (Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.Err != nil {
		return nil, s.Err
	}
	tbl := s.tables.Get(d)
	if tbl == nil {
		return Table{}, nil
	}
	return tbl.Clone(), nil
}

// ResetCounters is counted but leaves the tables as they are
func (s *StaticCollector) ResetCounters(ctx context.Context, d Direction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return nil
}

// Reads returns how many reads were served
func (s *StaticCollector) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *StaticCollector) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}
