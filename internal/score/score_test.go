package score

import (
	"errors"
	"testing"

	"crossclues/internal/types"
)

func TestSelectTier(t *testing.T) {
	row := []int{0, 4, 6, 8, 9}
	tests := []struct {
		score int
		want  int
	}{
		{0, 0},
		{3, 0},
		{4, 1},
		{5, 1},
		{6, 2},
		{7, 2},
		{8, 3},
		{9, 4},
		{-1, 0},
	}
	for _, tt := range tests {
		if got := SelectTier(row, tt.score); got != tt.want {
			t.Errorf("SelectTier(%v, %d) = %d, want %d", row, tt.score, got, tt.want)
		}
	}
}

func TestSelectTierBelowEveryThreshold(t *testing.T) {
	if got := SelectTier([]int{2, 5, 7}, 1); got != 0 {
		t.Errorf("score below every threshold selected tier %d, want 0", got)
	}
}

func TestDefaultsOutcome(t *testing.T) {
	ts := Defaults()
	classic, err := ts.Variant("")
	if err != nil {
		t.Fatalf("default variant: %v", err)
	}
	if classic.Name != "classic" {
		t.Fatalf("default variant = %q, want classic", classic.Name)
	}
	tests := []struct {
		size, score, tier int
	}{
		{3, 8, 3},
		{3, 9, 4},
		{3, 3, 0},
		{4, 15, 3},
		{4, 16, 4},
		{5, 24, 3},
		{5, 25, 4},
		{5, 12, 1},
	}
	for _, tt := range tests {
		out, err := classic.Outcome(tt.size, tt.score)
		if err != nil {
			t.Fatalf("Outcome(%d, %d): %v", tt.size, tt.score, err)
		}
		if out.Tier != tt.tier {
			t.Errorf("Outcome(%d, %d).Tier = %d, want %d", tt.size, tt.score, out.Tier, tt.tier)
		}
		if out.Message != classic.Messages[tt.tier] {
			t.Errorf("Outcome(%d, %d).Message = %q", tt.size, tt.score, out.Message)
		}
	}
	if _, err := classic.Outcome(6, 10); !errors.Is(err, ErrUnknownBoardSize) {
		t.Errorf("Outcome for board size 6 returned %v, want ErrUnknownBoardSize", err)
	}
	if _, err := ts.Variant("nope"); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("Variant(nope) returned %v, want ErrUnknownVariant", err)
	}
}

func TestParseRejectsBadTables(t *testing.T) {
	cases := map[string]string{
		"row length": `
variants:
  - name: short
    messages: ["a", "b"]
    thresholds:
      - board_size: 3
        values: [0, 1, 2]
`,
		"descending": `
variants:
  - name: down
    messages: ["a", "b"]
    thresholds:
      - board_size: 3
        values: [5, 1]
`,
		"missing default": `
default: other
variants:
  - name: one
    messages: ["a"]
    thresholds: []
`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: Parse accepted an invalid table", name)
		}
	}
}

func TestParseAddsBoardSizeWithoutCodeChange(t *testing.T) {
	ts, err := Parse([]byte(`
variants:
  - name: big
    messages: ["low", "high"]
    thresholds:
      - board_size: 6
        values: [0, 30]
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tbl, _ := ts.Variant("")
	out, err := tbl.Outcome(6, 31)
	if err != nil || out.Message != "high" {
		t.Errorf("Outcome(6, 31) = %+v, %v", out, err)
	}
}

func TestComputeHandScenario(t *testing.T) {
	s := &types.Session{
		Revealed:  make([]bool, 25),
		DeckIndex: 10,
		Discards:  map[int]string{3: "p1", 11: "p2"},
	}
	for _, i := range []int{0, 1, 2, 5, 6, 7} {
		s.Revealed[i] = true
	}
	got := Compute(s)
	want := Stats{Score: 6, DiscardCount: 2, DeckSize: 15, HandSize: 2}
	if got != want {
		t.Errorf("Compute = %+v, want %+v", got, want)
	}
	if s.Score != 0 {
		t.Errorf("Compute wrote back into the snapshot")
	}
}

func TestComputeUsesDiscardCountWhenMapMissing(t *testing.T) {
	s := &types.Session{Revealed: make([]bool, 9), DeckIndex: 9, DiscardCount: 2}
	got := Compute(s)
	if got.DiscardCount != 2 || got.HandSize != 7 {
		t.Errorf("Compute = %+v", got)
	}
}
