package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"rankkit/adapters/memory"
	"rankkit/core"
	"rankkit/leaderboard"
)

// File persists every board to a single JSON file.
// Suitable for demos and small deployments.
type File struct {
	path string
	mu   sync.Mutex
	// in-memory boards serve all reads
	boards map[string]*Store
}

type boardState struct {
	Polarity core.Polarity `json:"polarity"`
	Entries  []core.Entry  `json:"entries"`
}

func New(path string) (*File, error) {
	f := &File{path: path, boards: map[string]*Store{}}
	if err := f.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return f, nil
}

func (f *File) load() error {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	var raw map[string]boardState
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for name, st := range raw {
		mem := memory.New(st.Polarity)
		mem.Load(st.Entries)
		f.boards[name] = &Store{Store: mem, file: f}
	}
	return nil
}

// persist must be called with f.mu held.
func (f *File) persist() error {
	tmp := f.path + ".tmp"
	raw := make(map[string]boardState, len(f.boards))
	for name, s := range f.boards {
		raw[name] = boardState{Polarity: s.Polarity(), Entries: s.Entries()}
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Open returns the board's store, creating it on first use.
func (f *File) Open(_ context.Context, board string, p core.Polarity) (leaderboard.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.boards[board]; ok {
		if s.Polarity() != p {
			return nil, fmt.Errorf("board %q is stored with polarity %s", board, s.Polarity())
		}
		return s, nil
	}
	s := &Store{Store: memory.New(p), file: f}
	f.boards[board] = s
	return s, nil
}

// Boards lists the stored board names.
func (f *File) Boards() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.boards))
	for name := range f.boards {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Store is an in-memory board whose mutations are written through to the file.
type Store struct {
	*memory.Store
	file *File
}

func (s *Store) Upsert(ctx context.Context, name string, score float64) error {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()
	if err := s.Store.Upsert(ctx, name, score); err != nil {
		return err
	}
	return s.file.persist()
}

func (s *Store) Adjust(ctx context.Context, name string, delta float64) (float64, error) {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()
	next, err := s.Store.Adjust(ctx, name, delta)
	if err != nil {
		return 0, err
	}
	if err := s.file.persist(); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) Remove(ctx context.Context, name string) error {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()
	if err := s.Store.Remove(ctx, name); err != nil {
		return err
	}
	return s.file.persist()
}

func (s *Store) Clear(ctx context.Context) error {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()
	if err := s.Store.Clear(ctx); err != nil {
		return err
	}
	return s.file.persist()
}

var _ leaderboard.Store = (*Store)(nil)
var _ leaderboard.Opener = (*File)(nil)
