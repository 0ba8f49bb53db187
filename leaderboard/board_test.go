package leaderboard_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rankkit/adapters/memory"
	"rankkit/core"
	"rankkit/leaderboard"
)

type countingObserver struct {
	mu    sync.Mutex
	calls map[string]int
}

func (o *countingObserver) ObserveRoundTrip(procedure string, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[procedure]++
}

func (o *countingObserver) count(procedure string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[procedure]
}

func newFiveBoard(t *testing.T, p core.Polarity, opts ...leaderboard.Option) *leaderboard.Board {
	t.Helper()
	b := leaderboard.New(memory.New(p), opts...)
	ctx := context.Background()
	for name, score := range map[string]float64{"Michael": 300, "Bryan": 250, "Scott": 200, "Eric": 150, "John": 100} {
		require.NoError(t, b.SetScore(ctx, name, score))
	}
	return b
}

func names(list []core.RankedEntry) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.Name
	}
	return out
}

func TestBoard_ScoreAndRank(t *testing.T) {
	ctx := context.Background()
	b := newFiveBoard(t, core.Descending)

	e, found, err := b.ScoreAndRank(ctx, "Scott")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, core.RankedEntry{Name: "Scott", Score: 200, Rank: 3}, e)

	_, found, err = b.ScoreAndRank(ctx, "Jason")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = b.ScoreAndRank(ctx, "")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = b.ScoreAndRank(ctx, " Scott")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBoard_NamesAreByteExact(t *testing.T) {
	ctx := context.Background()
	b := leaderboard.New(memory.New(core.Descending))
	require.NoError(t, b.SetScore(ctx, "Bob", 10))
	require.NoError(t, b.SetScore(ctx, " Bob", 20))
	require.NoError(t, b.SetScore(ctx, "Bob\u00a0", 30))

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	e, found, err := b.ScoreAndRank(ctx, " Bob")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, core.RankedEntry{Name: " Bob", Score: 20, Rank: 2}, e)

	p, err := b.Page(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob\u00a0", " Bob", "Bob"}, names(p.List))

	require.NoError(t, b.Remove(ctx, " Bob"))
	_, found, err = b.ScoreAndRank(ctx, "Bob")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestBoard_ScoreAndRankAscending(t *testing.T) {
	ctx := context.Background()
	b := newFiveBoard(t, core.Ascending)

	e, found, err := b.ScoreAndRank(ctx, "John")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), e.Rank)

	e, _, err = b.ScoreAndRank(ctx, "Michael")
	require.NoError(t, err)
	assert.Equal(t, int64(5), e.Rank)
}

func TestBoard_Neighbors(t *testing.T) {
	ctx := context.Background()
	b := newFiveBoard(t, core.Descending)

	list, err := b.Neighbors(ctx, "Scott", 1)
	require.NoError(t, err)
	assert.Equal(t, []core.RankedEntry{
		{Name: "Bryan", Score: 250, Rank: 2},
		{Name: "Scott", Score: 200, Rank: 3},
		{Name: "Eric", Score: 150, Rank: 4},
	}, list)

	// near the top the window shifts down
	list, err = b.Neighbors(ctx, "Michael", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Michael", "Bryan", "Scott"}, names(list))

	// near the bottom it is cut short
	list, err = b.Neighbors(ctx, "John", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Eric", "John"}, names(list))

	list, err = b.Neighbors(ctx, "Eric", 0)
	require.NoError(t, err)
	assert.Equal(t, []core.RankedEntry{{Name: "Eric", Score: 150, Rank: 4}}, list)

	list, err = b.Neighbors(ctx, "Jason", 2)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	list, err = b.Neighbors(ctx, "Scott", -3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Scott"}, names(list))
}

func TestBoard_HugeArgumentsDoNotOverflow(t *testing.T) {
	ctx := context.Background()
	b := newFiveBoard(t, core.Descending)

	list, err := b.Neighbors(ctx, "Scott", math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, []string{"Michael", "Bryan", "Scott", "Eric", "John"}, names(list))

	list, err = b.Neighbors(ctx, "Michael", math.MaxInt)
	require.NoError(t, err)
	assert.Len(t, list, 5)

	p, err := b.Page(ctx, math.MaxInt, 2)
	require.NoError(t, err)
	assert.Equal(t, core.Page{Page: math.MaxInt, MaxPage: 3, Total: 5, List: []core.RankedEntry{}}, p)

	p, err = b.Page(ctx, 2, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, 1, p.MaxPage)
	assert.Empty(t, p.List)

	p, err = b.Page(ctx, 1, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, 1, p.MaxPage)
	assert.Equal(t, int64(5), p.Total)
	assert.Len(t, p.List, 5)
}

func TestBoard_NeighborsTiesSortedByName(t *testing.T) {
	ctx := context.Background()
	b := leaderboard.New(memory.New(core.Descending))
	for _, n := range []string{"zed", "amy", "kim"} {
		require.NoError(t, b.SetScore(ctx, n, 50))
	}
	require.NoError(t, b.SetScore(ctx, "top", 99))

	list, err := b.Neighbors(ctx, "kim", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"top", "amy", "kim", "zed"}, names(list))
	for _, e := range list[1:] {
		assert.Equal(t, int64(2), e.Rank)
	}
}

func TestBoard_Page(t *testing.T) {
	ctx := context.Background()
	b := newFiveBoard(t, core.Descending)

	p, err := b.Page(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 3, p.MaxPage)
	assert.Equal(t, int64(5), p.Total)
	assert.Equal(t, []string{"Michael", "Bryan"}, names(p.List))

	p, err = b.Page(ctx, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, core.Page{Page: 3, MaxPage: 2, Total: 5, List: []core.RankedEntry{}}, p)

	// number and size are clamped
	p, err = b.Page(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 5, p.MaxPage)
	assert.Equal(t, []string{"Michael"}, names(p.List))
}

func TestBoard_PagesConcatenateToFullOrder(t *testing.T) {
	ctx := context.Background()
	b := leaderboard.New(memory.New(core.Descending))
	scores := []float64{9, 9, 8, 7, 7, 7, 5, 4, 4, 1, 0}
	for i, s := range scores {
		require.NoError(t, b.SetScore(ctx, string(rune('a'+i)), s))
	}

	full, err := b.Page(ctx, 1, len(scores))
	require.NoError(t, err)

	var joined []core.RankedEntry
	for n := 1; n <= 4; n++ {
		p, err := b.Page(ctx, n, 3)
		require.NoError(t, err)
		assert.Equal(t, 4, p.MaxPage)
		joined = append(joined, p.List...)
	}
	assert.Equal(t, full.List, joined)
	assert.Equal(t, []int64{1, 1, 3, 4, 4, 4, 7, 8, 8, 10, 11}, func() []int64 {
		out := make([]int64, len(joined))
		for i, e := range joined {
			out[i] = e.Rank
		}
		return out
	}())
}

func TestBoard_PageUsesAtMostTwoRankLookups(t *testing.T) {
	ctx := context.Background()
	obs := &countingObserver{}
	b := leaderboard.New(memory.New(core.Descending), leaderboard.WithObserver(obs))
	for i := 0; i < 100; i++ {
		require.NoError(t, b.SetScore(ctx, fmt.Sprintf("p%03d", i), float64(i%17)))
	}

	p, err := b.Page(ctx, 2, 40)
	require.NoError(t, err)
	assert.Len(t, p.List, 40)
	assert.LessOrEqual(t, obs.count(leaderboard.ProcRankFromScore), 2)
	assert.Equal(t, 1, obs.count(leaderboard.ProcRangeWithTotal))
}

func TestBoard_Mutations(t *testing.T) {
	ctx := context.Background()
	b := newFiveBoard(t, core.Descending)

	score, err := b.ModifyScore(ctx, "John", 500)
	require.NoError(t, err)
	assert.Equal(t, 600.0, score)

	top, err := b.Top(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"John"}, names(top))

	score, err = b.ModifyScore(ctx, "Newcomer", -5)
	require.NoError(t, err)
	assert.Equal(t, -5.0, score)

	require.NoError(t, b.Remove(ctx, "Newcomer"))
	require.NoError(t, b.Remove(ctx, "Newcomer"))
	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	assert.ErrorIs(t, b.SetScore(ctx, "", 1), core.ErrEmptyName)
	assert.ErrorIs(t, b.SetScore(ctx, "x", math.NaN()), core.ErrInvalidScore)
	_, err = b.ModifyScore(ctx, "x", math.NaN())
	assert.ErrorIs(t, err, core.ErrInvalidScore)
	for _, inf := range []float64{math.Inf(1), math.Inf(-1)} {
		assert.ErrorIs(t, b.SetScore(ctx, "x", inf), core.ErrInvalidScore)
		_, err = b.ModifyScore(ctx, "John", inf)
		assert.ErrorIs(t, err, core.ErrInvalidScore)
	}
	e, found, err := b.ScoreAndRank(ctx, "John")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 600.0, e.Score)
	_, found, err = b.ScoreAndRank(ctx, "x")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.Clear(ctx))
	n, err = b.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// brokenStore fails the rank reads while delegating everything else.
type brokenStore struct {
	*memory.Store
	err error
}

func (s brokenStore) CountBetter(context.Context, float64) (int64, error) { return 0, s.err }
func (s brokenStore) Position(context.Context, string) (int64, bool, error) {
	return 0, false, s.err
}
func (s brokenStore) ScoreOf(context.Context, string) (float64, int64, bool, error) {
	return 0, 0, false, s.err
}
func (s brokenStore) RangeWithTotal(context.Context, int64, int64) (int64, []core.Entry, error) {
	return 0, nil, s.err
}

func TestBoard_StoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	mem := memory.New(core.Descending)
	require.NoError(t, mem.Upsert(ctx, "a", 1))
	b := leaderboard.New(brokenStore{Store: mem, err: boom})

	_, err := b.Neighbors(ctx, "a", 1)
	assert.ErrorIs(t, err, boom)

	_, err = b.Page(ctx, 1, 10)
	assert.ErrorIs(t, err, boom)

	_, _, err = b.ScoreAndRank(ctx, "a")
	assert.ErrorIs(t, err, boom)
}

func TestNew_PanicsOnNilStore(t *testing.T) {
	assert.Panics(t, func() { leaderboard.New(nil) })
}
