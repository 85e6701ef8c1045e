package board

import "testing"

func TestCoordinateAndLabel(t *testing.T) {
	tests := []struct {
		index, size int
		row, col    int
		label       string
	}{
		{0, 3, 0, 0, "A1"},
		{4, 3, 1, 1, "B2"},
		{8, 3, 2, 2, "C3"},
		{7, 4, 1, 3, "B4"},
		{24, 5, 4, 4, "E5"},
		{10, 5, 2, 0, "C1"},
	}
	for _, tt := range tests {
		row, col := Coordinate(tt.index, tt.size)
		if row != tt.row || col != tt.col {
			t.Errorf("Coordinate(%d, %d) = (%d, %d), want (%d, %d)", tt.index, tt.size, row, col, tt.row, tt.col)
		}
		if got := IndexLabel(tt.index, tt.size); got != tt.label {
			t.Errorf("IndexLabel(%d, %d) = %q, want %q", tt.index, tt.size, got, tt.label)
		}
	}
}

func TestParseLabelRoundTrip(t *testing.T) {
	for size := MinSize; size <= MaxSize; size++ {
		for i := 0; i < Cells(size); i++ {
			got, err := ParseLabel(IndexLabel(i, size), size)
			if err != nil {
				t.Fatalf("ParseLabel(%q): %v", IndexLabel(i, size), err)
			}
			if got != i {
				t.Errorf("size %d: round trip of %d gave %d", size, i, got)
			}
		}
	}
}

func TestParseLabelRejects(t *testing.T) {
	for _, label := range []string{"", "A", "A0", "D1", "A4", "Z9", "AX"} {
		if _, err := ParseLabel(label, 3); err == nil {
			t.Errorf("ParseLabel(%q, 3) should fail", label)
		}
	}
	if i, err := ParseLabel(" b2 ", 3); err != nil || i != 4 {
		t.Errorf("ParseLabel should accept lower case and spaces, got %d, %v", i, err)
	}
}

func TestSlotsHeaders(t *testing.T) {
	slots := Slots(3)
	if len(slots) != 16 {
		t.Fatalf("Slots(3) returned %d slots, want 16", len(slots))
	}
	if slots[0].Kind != SlotCorner {
		t.Errorf("slot 0 kind = %v, want corner", slots[0].Kind)
	}
	for col := 1; col <= 3; col++ {
		s := slots[col]
		if s.Kind != SlotNumberHeader || s.Word != col-1 || s.Index != -1 {
			t.Errorf("slot %d = %+v, want number header for word %d", col, s, col-1)
		}
	}
	for row := 1; row <= 3; row++ {
		s := slots[row*4]
		if s.Kind != SlotLetterHeader || s.Word != 3+row-1 {
			t.Errorf("slot %d = %+v, want letter header for word %d", row*4, s, 3+row-1)
		}
	}
}

func TestSlotsCellBijection(t *testing.T) {
	for size := MinSize; size <= MaxSize; size++ {
		seen := make(map[int]bool)
		for _, s := range Slots(size) {
			if s.Kind != SlotCell {
				continue
			}
			if s.Index < 0 || s.Index >= Cells(size) {
				t.Fatalf("size %d: slot %+v maps outside the board", size, s)
			}
			if seen[s.Index] {
				t.Fatalf("size %d: cell %d addressed twice", size, s.Index)
			}
			seen[s.Index] = true
			row, col := Coordinate(s.Index, size)
			if row != s.DisplayRow-1 || col != s.DisplayCol-1 {
				t.Errorf("size %d: slot (%d,%d) maps to cell (%d,%d)", size, s.DisplayRow, s.DisplayCol, row, col)
			}
		}
		if len(seen) != Cells(size) {
			t.Errorf("size %d: %d cells addressed, want %d", size, len(seen), Cells(size))
		}
	}
}

func TestValidSize(t *testing.T) {
	for n, want := range map[int]bool{2: false, 3: true, 4: true, 5: true, 6: false, 0: false} {
		if ValidSize(n) != want {
			t.Errorf("ValidSize(%d) = %v, want %v", n, !want, want)
		}
	}
}
