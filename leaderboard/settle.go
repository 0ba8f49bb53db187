package leaderboard

import (
	"context"

	"rankkit/core"
)

// RankSource resolves the competition rank a score currently holds.
type RankSource interface {
	RankFromScore(ctx context.Context, score float64) (int64, error)
}

// settleCalls is the number of confirmed group ranks after which the rest of a
// contiguous slice can be ranked locally.
const settleCalls = 2

// settler walks an ordered slice left to right. Once two distinct score
// groups are anchored by the source, no entry outside the slice can sit
// between them, so every later rank is the anchor plus entries consumed.
type settler struct {
	src      RankSource
	last     float64
	hasLast  bool
	prev     int64
	counter  int64
	counting bool
	calls    int
}

func (s *settler) step(ctx context.Context, score float64) (int64, error) {
	if s.hasLast && score == s.last {
		if s.counting {
			s.counter++
		}
		return s.prev, nil
	}
	s.last, s.hasLast = score, true

	if s.counting {
		s.counter++
		s.prev = s.counter
		return s.prev, nil
	}

	rank, err := s.src.RankFromScore(ctx, score)
	if err != nil {
		return 0, err
	}
	s.calls++
	if s.calls >= settleCalls {
		s.counter, s.counting = rank, true
	}
	s.prev = rank
	return rank, nil
}

// Settle computes the 1-origin competition rank of every entry of a
// contiguous, polarity-ordered slice of a board. It asks src at most twice
// regardless of the slice length and never for a tie. The result is parallel
// to entries.
func Settle(ctx context.Context, src RankSource, entries []core.Entry) ([]int64, error) {
	ranks := make([]int64, len(entries))
	s := settler{src: src}
	for i, e := range entries {
		r, err := s.step(ctx, e.Score)
		if err != nil {
			return nil, err
		}
		ranks[i] = r
	}
	return ranks, nil
}
