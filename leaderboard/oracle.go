package leaderboard

import (
	"context"
	"time"

	"rankkit/core"
)

// Procedure names reported to an Observer.
const (
	ProcPosition       = "position"
	ProcScoreAndRank   = "score_and_rank"
	ProcRankFromScore  = "rank_from_score"
	ProcRange          = "range"
	ProcRangeWithTotal = "range_with_total"
)

// Observer is notified after every oracle round trip.
type Observer interface {
	ObserveRoundTrip(procedure string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveRoundTrip(string, time.Duration, error) {}

// Oracle wraps the atomic read procedures of a Store. Every method is exactly
// one store round trip; results of separate calls are not mutually consistent.
type Oracle struct {
	store Store
	obs   Observer
}

// NewOracle returns an Oracle over store. obs may be nil.
func NewOracle(store Store, obs Observer) *Oracle {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Oracle{store: store, obs: obs}
}

// PositionOf returns the 0-origin position of name, or found=false.
func (o *Oracle) PositionOf(ctx context.Context, name string) (int64, bool, error) {
	start := time.Now()
	pos, found, err := o.store.Position(ctx, name)
	o.obs.ObserveRoundTrip(ProcPosition, time.Since(start), err)
	return pos, found, err
}

// ScoreAndRankOf returns name's score and competition rank, or found=false.
func (o *Oracle) ScoreAndRankOf(ctx context.Context, name string) (float64, int64, bool, error) {
	start := time.Now()
	score, better, found, err := o.store.ScoreOf(ctx, name)
	o.obs.ObserveRoundTrip(ProcScoreAndRank, time.Since(start), err)
	if err != nil || !found {
		return 0, 0, false, err
	}
	return score, better + 1, true, nil
}

// RankFromScore returns the rank an entry holding exactly score would have.
// The score need not be present on the board.
func (o *Oracle) RankFromScore(ctx context.Context, score float64) (int64, error) {
	start := time.Now()
	better, err := o.store.CountBetter(ctx, score)
	o.obs.ObserveRoundTrip(ProcRankFromScore, time.Since(start), err)
	if err != nil {
		return 0, err
	}
	return better + 1, nil
}

// RangeSlice returns the entries at positions start..end inclusive, best first.
func (o *Oracle) RangeSlice(ctx context.Context, start, end int64) ([]core.Entry, error) {
	if start < 0 {
		start = 0
	}
	began := time.Now()
	entries, err := o.store.Range(ctx, start, end)
	o.obs.ObserveRoundTrip(ProcRange, time.Since(began), err)
	return entries, err
}

// RangeSliceWithTotal is RangeSlice plus the board cardinality, both drawn
// from one atomic snapshot.
func (o *Oracle) RangeSliceWithTotal(ctx context.Context, start, end int64) (int64, []core.Entry, error) {
	if start < 0 {
		start = 0
	}
	began := time.Now()
	total, entries, err := o.store.RangeWithTotal(ctx, start, end)
	o.obs.ObserveRoundTrip(ProcRangeWithTotal, time.Since(began), err)
	return total, entries, err
}
