package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Polarity decides whether higher or lower scores rank better.
// It is fixed when a leaderboard is created.
type Polarity int

const (
	// Descending boards rank higher scores first.
	Descending Polarity = iota
	// Ascending boards rank lower scores first.
	Ascending
)

// ParsePolarity accepts "desc"/"descending" and "asc"/"ascending".
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desc", "descending":
		return Descending, nil
	case "asc", "ascending":
		return Ascending, nil
	}
	return Descending, fmt.Errorf("unknown polarity %q", s)
}

func (p Polarity) String() string {
	if p == Ascending {
		return "asc"
	}
	return "desc"
}

// Better reports whether score a ranks strictly better than score b.
func (p Polarity) Better(a, b float64) bool {
	if p == Ascending {
		return a < b
	}
	return a > b
}

// MarshalText implements encoding.TextMarshaler.
func (p Polarity) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Polarity) UnmarshalText(b []byte) error {
	v, err := ParsePolarity(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Entry is a single (name, score) pair as kept by the ordered store.
type Entry struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// RankedEntry is an entry joined with its 1-origin competition rank.
type RankedEntry struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Rank  int64   `json:"rank"`
}

// Page is one page of a leaderboard listing.
// Page echoes the requested page number even when it lies past MaxPage.
type Page struct {
	Page    int           `json:"page"`
	MaxPage int           `json:"maxPage"`
	Total   int64         `json:"total"`
	List    []RankedEntry `json:"list"`
}

var (
	// ErrEmptyName is returned for empty entrant names.
	ErrEmptyName = errors.New("empty entrant name")
	// ErrInvalidScore is returned for NaN or infinite scores and deltas.
	ErrInvalidScore = errors.New("invalid score")
	// ErrInvalidBoardName is returned for board identifiers outside [A-Za-z0-9_.:-].
	ErrInvalidBoardName = errors.New("invalid board name")
	// ErrMalformedRange marks a range reply that cannot be decoded into entries.
	// It signals a broken store adapter, not a caller mistake.
	ErrMalformedRange = errors.New("malformed range reply from store")
)

// ValidateName rejects the empty name. Names are stored byte-exact, so
// "Bob" and " Bob" are different entrants.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	return nil
}

// ValidateScore rejects NaN and infinite values, which have no total order
// and cannot be persisted by every store.
func ValidateScore(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrInvalidScore
	}
	return nil
}

// ValidateBoardName ensures a non-empty identifier with a simple charset check.
func ValidateBoardName(board string) error {
	if board == "" {
		return ErrInvalidBoardName
	}
	for _, r := range board {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.' || r == ':' {
			continue
		}
		return ErrInvalidBoardName
	}
	return nil
}
