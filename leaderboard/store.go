// Package leaderboard answers rank, position and range queries over an
// ordered score store while keeping round trips to the store minimal.
package leaderboard

import (
	"context"

	"rankkit/core"
)

// Store is an ordered score store holding a single leaderboard.
//
// Entries are keyed by name and ordered by score according to Polarity; ties
// are ordered by a store-defined but stable secondary key. Each read procedure
// must execute as one indivisible round trip, and RangeWithTotal must observe
// its count and its window at the same logical instant.
type Store interface {
	// Upsert sets name's score, creating the entry when absent.
	Upsert(ctx context.Context, name string, score float64) error
	// Adjust adds delta to name's score, creating the entry with score=delta
	// when absent, and returns the new score.
	Adjust(ctx context.Context, name string, delta float64) (float64, error)
	Remove(ctx context.Context, name string) error
	Clear(ctx context.Context) error
	Card(ctx context.Context) (int64, error)

	// CountBetter returns the number of entries whose score is strictly
	// better than score.
	CountBetter(ctx context.Context, score float64) (int64, error)
	// Position returns the 0-origin index of name.
	Position(ctx context.Context, name string) (pos int64, found bool, err error)
	// ScoreOf returns name's score and the number of strictly better entries.
	ScoreOf(ctx context.Context, name string) (score float64, better int64, found bool, err error)
	// Range returns entries at positions start..end inclusive, clipped to the
	// current bounds, best first.
	Range(ctx context.Context, start, end int64) ([]core.Entry, error)
	// RangeWithTotal is Range plus the cardinality, from one snapshot.
	RangeWithTotal(ctx context.Context, start, end int64) (total int64, entries []core.Entry, err error)

	Polarity() core.Polarity
}

// Opener hands out the Store of a named board.
type Opener interface {
	Open(ctx context.Context, board string, polarity core.Polarity) (Store, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, board string, polarity core.Polarity) (Store, error)

func (f OpenerFunc) Open(ctx context.Context, board string, polarity core.Polarity) (Store, error) {
	return f(ctx, board, polarity)
}
