package leaderboard

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"rankkit/core"
)

// Board is a ranked leaderboard over a Store. It keeps no state of its own:
// every read re-derives its answer from the store at call time.
type Board struct {
	name   string
	store  Store
	oracle *Oracle
	logger *slog.Logger
	obs    Observer
}

// Option configures a Board.
type Option func(*Board)

// WithName labels the board in logs.
func WithName(name string) Option { return func(b *Board) { b.name = name } }

// WithLogger sets the logger used for store failures (defaults to slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(b *Board) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithObserver installs a round-trip observer on the board's oracle.
func WithObserver(o Observer) Option { return func(b *Board) { b.obs = o } }

// New builds a Board over store.
func New(store Store, opts ...Option) *Board {
	if store == nil {
		panic("leaderboard.New requires a non-nil store")
	}
	b := &Board{store: store, logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	b.oracle = NewOracle(store, b.obs)
	return b
}

// Name returns the board label set with WithName.
func (b *Board) Name() string { return b.name }

// Polarity returns the store's fixed polarity.
func (b *Board) Polarity() core.Polarity { return b.store.Polarity() }

// Oracle exposes the board's rank oracle.
func (b *Board) Oracle() *Oracle { return b.oracle }

// SetScore sets name's score, overwriting any previous one.
func (b *Board) SetScore(ctx context.Context, name string, score float64) error {
	if err := core.ValidateName(name); err != nil {
		return err
	}
	if err := core.ValidateScore(score); err != nil {
		return err
	}
	if err := b.store.Upsert(ctx, name, score); err != nil {
		return b.fail(ctx, "set_score", err)
	}
	return nil
}

// ModifyScore adds delta (possibly negative) to name's score and returns the
// new score. An absent name starts from zero.
func (b *Board) ModifyScore(ctx context.Context, name string, delta float64) (float64, error) {
	if err := core.ValidateName(name); err != nil {
		return 0, err
	}
	if err := core.ValidateScore(delta); err != nil {
		return 0, err
	}
	score, err := b.store.Adjust(ctx, name, delta)
	if err != nil {
		return 0, b.fail(ctx, "modify_score", err)
	}
	return score, nil
}

// Remove deletes name. Removing an absent name is not an error.
func (b *Board) Remove(ctx context.Context, name string) error {
	if err := core.ValidateName(name); err != nil {
		return err
	}
	if err := b.store.Remove(ctx, name); err != nil {
		return b.fail(ctx, "remove", err)
	}
	return nil
}

// Clear deletes every entry.
func (b *Board) Clear(ctx context.Context) error {
	if err := b.store.Clear(ctx); err != nil {
		return b.fail(ctx, "clear", err)
	}
	return nil
}

// Count returns the number of entries.
func (b *Board) Count(ctx context.Context) (int64, error) {
	n, err := b.store.Card(ctx)
	if err != nil {
		return 0, b.fail(ctx, "count", err)
	}
	return n, nil
}

// ScoreAndRank returns name with its score and rank, or found=false.
func (b *Board) ScoreAndRank(ctx context.Context, name string) (core.RankedEntry, bool, error) {
	if core.ValidateName(name) != nil {
		return core.RankedEntry{}, false, nil
	}
	score, rank, found, err := b.oracle.ScoreAndRankOf(ctx, name)
	if err != nil {
		return core.RankedEntry{}, false, b.fail(ctx, "score_and_rank", err)
	}
	if !found {
		return core.RankedEntry{}, false, nil
	}
	return core.RankedEntry{Name: name, Score: score, Rank: rank}, true, nil
}

// Neighbors returns the entries within radius positions of name, ordered by
// (rank, name). Near the top the window is shifted down so it still spans
// 2*radius+1 positions; near the bottom it is simply cut short. An absent
// name yields an empty list.
func (b *Board) Neighbors(ctx context.Context, name string, radius int) ([]core.RankedEntry, error) {
	if core.ValidateName(name) != nil {
		return []core.RankedEntry{}, nil
	}
	pos, found, err := b.oracle.PositionOf(ctx, name)
	if err != nil {
		return nil, b.fail(ctx, "neighbors", err)
	}
	if !found {
		return []core.RankedEntry{}, nil
	}
	r := min(max(int64(radius), 0), maxRadius)
	start, end := pos-r, pos+r
	if start < 0 {
		start, end = 0, 2*r
	}
	entries, err := b.oracle.RangeSlice(ctx, start, end)
	if err != nil {
		return nil, b.fail(ctx, "neighbors", err)
	}
	list, err := b.rank(ctx, entries)
	if err != nil {
		return nil, b.fail(ctx, "neighbors", err)
	}
	return list, nil
}

// Page returns the 1-origin page number of the given size. Both are clamped
// to at least 1. Pages past the end come back empty with the true MaxPage.
func (b *Board) Page(ctx context.Context, number, size int) (core.Page, error) {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = 1
	}
	start, end := pageWindow(number, size)

	total, entries, err := b.oracle.RangeSliceWithTotal(ctx, start, end)
	if err != nil {
		return core.Page{}, b.fail(ctx, "page", err)
	}
	list, err := b.rank(ctx, entries)
	if err != nil {
		return core.Page{}, b.fail(ctx, "page", err)
	}
	return core.Page{
		Page:    number,
		MaxPage: int(pageCount(total, int64(size))),
		Total:   total,
		List:    list,
	}, nil
}

// maxRadius bounds a Neighbors radius so the window arithmetic cannot
// overflow. No store holds enough entries for the cap to be visible.
const maxRadius = math.MaxInt64 / 4

// pageWindow returns the inclusive 0-origin positions of page number. A page
// whose start cannot be represented maps to a window past every entry.
func pageWindow(number, size int) (start, end int64) {
	n, s := int64(number-1), int64(size)
	if n > (math.MaxInt64-s)/s {
		return math.MaxInt64 - s + 1, math.MaxInt64
	}
	start = n * s
	return start, start + s - 1
}

// pageCount is ceil(total/size) without the overflow of total+size-1.
func pageCount(total, size int64) int64 {
	if total <= 0 {
		return 0
	}
	return (total-1)/size + 1
}

// Top returns the best n entries.
func (b *Board) Top(ctx context.Context, n int) ([]core.RankedEntry, error) {
	p, err := b.Page(ctx, 1, n)
	if err != nil {
		return nil, err
	}
	return p.List, nil
}

// rank settles entries and orders them by (rank, name) so ties list
// deterministically whatever the store's secondary order.
func (b *Board) rank(ctx context.Context, entries []core.Entry) ([]core.RankedEntry, error) {
	ranks, err := Settle(ctx, b.oracle, entries)
	if err != nil {
		return nil, err
	}
	list := make([]core.RankedEntry, len(entries))
	for i, e := range entries {
		list[i] = core.RankedEntry{Name: e.Name, Score: e.Score, Rank: ranks[i]}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Rank != list[j].Rank {
			return list[i].Rank < list[j].Rank
		}
		return list[i].Name < list[j].Name
	})
	return list, nil
}

func (b *Board) fail(ctx context.Context, op string, err error) error {
	b.logger.DebugContext(ctx, "leaderboard store call failed",
		"board", b.name,
		"op", op,
		"error", err)
	return err
}
