// Package score derives display values from a session snapshot and picks
// the end-of-round outcome tier from table-driven thresholds.
package score

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"github.com/goccy/go-yaml"
	"github.com/samber/lo"

	"crossclues/internal/types"
)

//go:embed tiers.yaml
var defaultTiers []byte

var (
	ErrUnknownBoardSize = errors.New("no thresholds for board size")
	ErrUnknownVariant   = errors.New("unknown tier variant")
)

// Stats are the counters shown next to the board.
type Stats struct {
	Score        int
	DiscardCount int
	DeckSize     int
	HandSize     int
}

// Compute derives Stats from a snapshot. It never modifies s.
func Compute(s *types.Session) Stats {
	if s == nil {
		return Stats{}
	}
	total := len(s.Revealed)
	st := Stats{
		Score:        lo.Count(s.Revealed, true),
		DiscardCount: len(s.Discards),
		DeckSize:     total - s.DeckIndex,
	}
	if s.Discards == nil {
		st.DiscardCount = s.DiscardCount
	}
	st.HandSize = total - st.Score - st.DiscardCount - st.DeckSize
	return st
}

// SelectTier returns the tier for score given ascending thresholds: the
// first index whose threshold exceeds score, minus one. Reaching the last
// threshold selects the top tier and scores below every threshold select
// tier 0.
func SelectTier(thresholds []int, score int) int {
	tier := len(thresholds) - 1
	for i, v := range thresholds {
		if score < v {
			tier = i - 1
			break
		}
	}
	if tier < 0 {
		return 0
	}
	return tier
}

// Outcome is the result of a finished round.
type Outcome struct {
	Tier    int
	Message string
	Score   int
}

// Table is one variant's message list and per-board-size thresholds.
type Table struct {
	Name       string         `yaml:"name"`
	Messages   []string       `yaml:"messages"`
	Thresholds []ThresholdRow `yaml:"thresholds"`
}

// ThresholdRow holds the ascending thresholds for one board size.
type ThresholdRow struct {
	BoardSize int   `yaml:"board_size"`
	Values    []int `yaml:"values"`
}

// Row returns the thresholds for boardSize.
func (t *Table) Row(boardSize int) ([]int, error) {
	row, ok := lo.Find(t.Thresholds, func(r ThresholdRow) bool { return r.BoardSize == boardSize })
	if !ok {
		return nil, fmt.Errorf("%w %d in %q", ErrUnknownBoardSize, boardSize, t.Name)
	}
	return row.Values, nil
}

// Outcome picks the tier and message for a round of boardSize ending on score.
func (t *Table) Outcome(boardSize, score int) (Outcome, error) {
	row, err := t.Row(boardSize)
	if err != nil {
		return Outcome{}, err
	}
	tier := SelectTier(row, score)
	return Outcome{Tier: tier, Message: t.Messages[tier], Score: score}, nil
}

func (t *Table) validate() error {
	if t.Name == "" {
		return errors.New("tier table without name")
	}
	if len(t.Messages) == 0 {
		return fmt.Errorf("tier table %q has no messages", t.Name)
	}
	for _, r := range t.Thresholds {
		if len(r.Values) != len(t.Messages) {
			return fmt.Errorf("tier table %q board size %d: %d thresholds for %d messages",
				t.Name, r.BoardSize, len(r.Values), len(t.Messages))
		}
		if !slices.IsSorted(r.Values) {
			return fmt.Errorf("tier table %q board size %d: thresholds not ascending", t.Name, r.BoardSize)
		}
	}
	return nil
}

// Tables is a set of named variants with one default.
type Tables struct {
	Default  string  `yaml:"default"`
	Variants []Table `yaml:"variants"`
}

// Parse decodes and validates a YAML tier configuration.
func Parse(data []byte) (*Tables, error) {
	var ts Tables
	if err := yaml.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("decode tier tables: %w", err)
	}
	for i := range ts.Variants {
		if err := ts.Variants[i].validate(); err != nil {
			return nil, err
		}
	}
	if ts.Default == "" && len(ts.Variants) > 0 {
		ts.Default = ts.Variants[0].Name
	}
	if _, err := ts.Variant(ts.Default); err != nil {
		return nil, err
	}
	return &ts, nil
}

// Variant returns the table called name; an empty name selects the default.
func (ts *Tables) Variant(name string) (*Table, error) {
	if name == "" {
		name = ts.Default
	}
	for i := range ts.Variants {
		if ts.Variants[i].Name == name {
			return &ts.Variants[i], nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownVariant, name)
}

// Defaults returns the embedded tier configuration.
func Defaults() *Tables {
	ts, err := Parse(defaultTiers)
	if err != nil {
		panic(fmt.Sprintf("embedded tiers.yaml: %v", err))
	}
	return ts
}
