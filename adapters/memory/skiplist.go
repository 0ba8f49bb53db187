package memory

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"

	"rankkit/core"
)

// An indexed skip list keyed by (score by polarity, name asc). Every forward
// pointer carries its span, the number of level-0 steps it jumps, so rank and
// position lookups are O(log n). Not safe for concurrent use.

const maxLevel = 16
const pFactor = 0.25

type level struct {
	next *node
	span int64
}

type node struct {
	e     core.Entry
	level []level
}

type skipList struct {
	head     *node
	lvl      int
	length   int64
	byName   map[string]*node
	polarity core.Polarity
	rng      *rand.Rand
}

func newSkipList(p core.Polarity) *skipList {
	// Use crypto/rand to generate a secure seed for PCG
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		seed = [16]byte{}
	}
	seed1 := binary.BigEndian.Uint64(seed[:8])
	seed2 := binary.BigEndian.Uint64(seed[8:])

	return &skipList{
		head:     &node{level: make([]level, maxLevel)},
		lvl:      1,
		byName:   map[string]*node{},
		polarity: p,
		rng:      rand.New(rand.NewPCG(seed1, seed2)),
	}
}

func (s *skipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < pFactor {
		lvl++
	}
	return lvl
}

func (s *skipList) less(a, b core.Entry) bool {
	if a.Score == b.Score {
		return a.Name < b.Name
	}
	return s.polarity.Better(a.Score, b.Score)
}

func (s *skipList) get(name string) (core.Entry, bool) {
	if n, ok := s.byName[name]; ok {
		return n.e, true
	}
	return core.Entry{}, false
}

// set inserts name or moves it to score.
func (s *skipList) set(name string, score float64) {
	if old, ok := s.byName[name]; ok {
		if old.e.Score == score {
			return
		}
		s.delete(old.e)
	}
	s.insert(core.Entry{Name: name, Score: score})
}

func (s *skipList) insert(e core.Entry) {
	var update [maxLevel]*node
	var rank [maxLevel]int64
	x := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		if i < s.lvl-1 {
			rank[i] = rank[i+1]
		}
		for x.level[i].next != nil && s.less(x.level[i].next.e, e) {
			rank[i] += x.level[i].span
			x = x.level[i].next
		}
		update[i] = x
	}
	lvl := s.randomLevel()
	if lvl > s.lvl {
		for i := s.lvl; i < lvl; i++ {
			rank[i] = 0
			update[i] = s.head
			update[i].level[i].span = s.length
		}
		s.lvl = lvl
	}
	n := &node{e: e, level: make([]level, lvl)}
	for i := 0; i < lvl; i++ {
		n.level[i].next = update[i].level[i].next
		update[i].level[i].next = n
		n.level[i].span = update[i].level[i].span - (rank[0] - rank[i])
		update[i].level[i].span = rank[0] - rank[i] + 1
	}
	for i := lvl; i < s.lvl; i++ {
		update[i].level[i].span++
	}
	s.byName[e.Name] = n
	s.length++
}

func (s *skipList) delete(e core.Entry) bool {
	var update [maxLevel]*node
	x := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for x.level[i].next != nil && s.less(x.level[i].next.e, e) {
			x = x.level[i].next
		}
		update[i] = x
	}
	target := x.level[0].next
	if target == nil || target.e.Name != e.Name {
		return false
	}
	for i := 0; i < s.lvl; i++ {
		if update[i].level[i].next == target {
			update[i].level[i].span += target.level[i].span - 1
			update[i].level[i].next = target.level[i].next
		} else {
			update[i].level[i].span--
		}
	}
	for s.lvl > 1 && s.head.level[s.lvl-1].next == nil {
		s.lvl--
	}
	delete(s.byName, e.Name)
	s.length--
	return true
}

func (s *skipList) remove(name string) {
	if n, ok := s.byName[name]; ok {
		s.delete(n.e)
	}
}

// position returns the 0-origin index of name.
func (s *skipList) position(name string) (int64, bool) {
	n, ok := s.byName[name]
	if !ok {
		return 0, false
	}
	var traversed int64
	x := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for x.level[i].next != nil && !s.less(n.e, x.level[i].next.e) {
			traversed += x.level[i].span
			x = x.level[i].next
		}
		if x == n {
			return traversed - 1, true
		}
	}
	return 0, false
}

// countBetter returns how many entries score strictly better than score.
func (s *skipList) countBetter(score float64) int64 {
	var n int64
	x := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for x.level[i].next != nil && s.polarity.Better(x.level[i].next.e.Score, score) {
			n += x.level[i].span
			x = x.level[i].next
		}
	}
	return n
}

// at returns the node at 0-origin position pos.
func (s *skipList) at(pos int64) *node {
	target := pos + 1
	var traversed int64
	x := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for x.level[i].next != nil && traversed+x.level[i].span <= target {
			traversed += x.level[i].span
			x = x.level[i].next
		}
		if traversed == target {
			return x
		}
	}
	return nil
}

// rangeOf returns entries at positions start..end inclusive, clipped.
func (s *skipList) rangeOf(start, end int64) []core.Entry {
	if start < 0 {
		start = 0
	}
	if end >= s.length {
		end = s.length - 1
	}
	if start > end {
		return []core.Entry{}
	}
	out := make([]core.Entry, 0, end-start+1)
	for x := s.at(start); x != nil && int64(len(out)) < end-start+1; x = x.level[0].next {
		out = append(out, x.e)
	}
	return out
}
