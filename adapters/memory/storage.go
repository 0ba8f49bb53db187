package memory

import (
	"context"
	"fmt"
	"sync"

	"rankkit/core"
	"rankkit/leaderboard"
)

// Store is a concurrent in-memory leaderboard. Each procedure holds the lock
// once, so every read observes a single snapshot.
type Store struct {
	mu   sync.RWMutex
	list *skipList
}

// New returns an empty store with the given polarity.
func New(p core.Polarity) *Store { return &Store{list: newSkipList(p)} }

func (s *Store) Polarity() core.Polarity { return s.list.polarity }

func (s *Store) Upsert(_ context.Context, name string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list.set(name, score)
	return nil
}

func (s *Store) Adjust(_ context.Context, name string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, _ := s.list.get(name)
	next := cur.Score + delta
	s.list.set(name, next)
	return next, nil
}

func (s *Store) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list.remove(name)
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = newSkipList(s.list.polarity)
	return nil
}

func (s *Store) Card(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.length, nil
}

func (s *Store) CountBetter(_ context.Context, score float64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.countBetter(score), nil
}

func (s *Store) Position(_ context.Context, name string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.list.position(name)
	return pos, ok, nil
}

func (s *Store) ScoreOf(_ context.Context, name string) (float64, int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.list.get(name)
	if !ok {
		return 0, 0, false, nil
	}
	return e.Score, s.list.countBetter(e.Score), true, nil
}

func (s *Store) Range(_ context.Context, start, end int64) ([]core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.rangeOf(start, end), nil
}

func (s *Store) RangeWithTotal(_ context.Context, start, end int64) (int64, []core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.length, s.list.rangeOf(start, end), nil
}

// Entries returns every entry, best first.
func (s *Store) Entries() []core.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.rangeOf(0, s.list.length-1)
}

// Load replaces the store contents with entries.
func (s *Store) Load(entries []core.Entry) {
	list := newSkipList(s.list.polarity)
	for _, e := range entries {
		list.set(e.Name, e.Score)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = list
}

// Registry keeps one Store per board name for the lifetime of the process.
type Registry struct {
	mu     sync.Mutex
	boards map[string]*Store
}

func NewRegistry() *Registry { return &Registry{boards: map[string]*Store{}} }

// Open returns the board's store, creating it on first use. A board keeps the
// polarity it was first opened with.
func (r *Registry) Open(_ context.Context, board string, p core.Polarity) (leaderboard.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.boards[board]; ok {
		if s.Polarity() != p {
			return nil, fmt.Errorf("board %q already open with polarity %s", board, s.Polarity())
		}
		return s, nil
	}
	s := New(p)
	r.boards[board] = s
	return s, nil
}

var _ leaderboard.Store = (*Store)(nil)
var _ leaderboard.Opener = (*Registry)(nil)
