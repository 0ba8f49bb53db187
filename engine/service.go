package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"rankkit/core"
	"rankkit/leaderboard"
)

var (
	// ErrUnknownBoard is returned for operations on a board that was never declared.
	ErrUnknownBoard = errors.New("unknown board")
	// ErrPolarityConflict is returned when a board is redeclared with another polarity.
	ErrPolarityConflict = errors.New("board already declared with a different polarity")
)

// Service keeps the named boards of one store backend and publishes an event
// after every successful mutation.
type Service struct {
	opener leaderboard.Opener
	bus    *EventBus
	logger *slog.Logger
	obs    leaderboard.Observer

	mu     sync.RWMutex
	boards map[string]*leaderboard.Board
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service and board logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver installs a round-trip observer on every board.
func WithObserver(o leaderboard.Observer) ServiceOption {
	return func(s *Service) { s.obs = o }
}

func NewService(opener leaderboard.Opener, bus *EventBus, opts ...ServiceOption) *Service {
	if opener == nil || bus == nil {
		panic("NewService requires non-nil opener and bus")
	}
	s := &Service{
		opener: opener,
		bus:    bus,
		logger: slog.Default(),
		boards: map[string]*leaderboard.Board{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Declare opens board with the given polarity. Declaring an existing board
// with the same polarity returns it unchanged.
func (s *Service) Declare(ctx context.Context, name string, polarity core.Polarity) (*leaderboard.Board, error) {
	if err := core.ValidateBoardName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.boards[name]; ok {
		if b.Polarity() != polarity {
			return nil, fmt.Errorf("%w: %s is %s", ErrPolarityConflict, name, b.Polarity())
		}
		return b, nil
	}
	store, err := s.opener.Open(ctx, name, polarity)
	if err != nil {
		return nil, fmt.Errorf("failed to open board %s: %w", name, err)
	}
	b := leaderboard.New(store,
		leaderboard.WithName(name),
		leaderboard.WithLogger(s.logger),
		leaderboard.WithObserver(s.obs))
	s.boards[name] = b
	s.logger.Info("board declared", "board", name, "polarity", polarity.String())
	return b, nil
}

// Board returns a declared board.
func (s *Service) Board(name string) (*leaderboard.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBoard, name)
	}
	return b, nil
}

// Boards lists the declared boards by name.
func (s *Service) Boards() []BoardInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BoardInfo, 0, len(s.boards))
	for name, b := range s.boards {
		out = append(out, BoardInfo{Name: name, Polarity: b.Polarity()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Subscribe convenience method.
func (s *Service) Subscribe(typ core.EventType, handler Handler) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *Service) SubscribeAll(handler Handler) func() {
	return s.bus.SubscribeAll(handler)
}

func (s *Service) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

func (s *Service) SetScore(ctx context.Context, board, name string, score float64) error {
	b, err := s.Board(board)
	if err != nil {
		return err
	}
	if err := b.SetScore(ctx, name, score); err != nil {
		return err
	}
	s.bus.Publish(ctx, core.NewScoreSet(board, name, score))
	return nil
}

func (s *Service) ModifyScore(ctx context.Context, board, name string, delta float64) (float64, error) {
	b, err := s.Board(board)
	if err != nil {
		return 0, err
	}
	score, err := b.ModifyScore(ctx, name, delta)
	if err != nil {
		return 0, err
	}
	s.bus.Publish(ctx, core.NewScoreModified(board, name, delta, score))
	return score, nil
}

func (s *Service) Remove(ctx context.Context, board, name string) error {
	b, err := s.Board(board)
	if err != nil {
		return err
	}
	if err := b.Remove(ctx, name); err != nil {
		return err
	}
	s.bus.Publish(ctx, core.NewEntryRemoved(board, name))
	return nil
}

func (s *Service) Clear(ctx context.Context, board string) error {
	b, err := s.Board(board)
	if err != nil {
		return err
	}
	if err := b.Clear(ctx); err != nil {
		return err
	}
	s.bus.Publish(ctx, core.NewBoardCleared(board))
	return nil
}

func (s *Service) Count(ctx context.Context, board string) (int64, error) {
	b, err := s.Board(board)
	if err != nil {
		return 0, err
	}
	return b.Count(ctx)
}

func (s *Service) ScoreAndRank(ctx context.Context, board, name string) (core.RankedEntry, bool, error) {
	b, err := s.Board(board)
	if err != nil {
		return core.RankedEntry{}, false, err
	}
	return b.ScoreAndRank(ctx, name)
}

func (s *Service) Neighbors(ctx context.Context, board, name string, radius int) ([]core.RankedEntry, error) {
	b, err := s.Board(board)
	if err != nil {
		return nil, err
	}
	return b.Neighbors(ctx, name, radius)
}

func (s *Service) Page(ctx context.Context, board string, number, size int) (core.Page, error) {
	b, err := s.Board(board)
	if err != nil {
		return core.Page{}, err
	}
	return b.Page(ctx, number, size)
}

// Ping makes one store round trip per declared board.
func (s *Service) Ping(ctx context.Context) error {
	s.mu.RLock()
	boards := make([]*leaderboard.Board, 0, len(s.boards))
	for _, b := range s.boards {
		boards = append(boards, b)
	}
	s.mu.RUnlock()
	for _, b := range boards {
		if _, err := b.Count(ctx); err != nil {
			return fmt.Errorf("board %s: %w", b.Name(), err)
		}
	}
	return nil
}

func (s *Service) Close() { s.bus.Close() }

var _ Publisher = (*Service)(nil)
var _ Subscriber = (*Service)(nil)
var _ Publisher = (*EventBus)(nil)
var _ Subscriber = (*EventBus)(nil)
