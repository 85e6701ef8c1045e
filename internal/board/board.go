// Package board maps linear cell indices to board coordinates and to the
// slots of the header grid, where the first display row and column hold the
// category words.
package board

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported board sizes.
const (
	MinSize = 3
	MaxSize = 5
)

// ValidSize reports whether n is a playable board size.
func ValidSize(n int) bool {
	return n >= MinSize && n <= MaxSize
}

// Cells returns the number of cells on an n×n board.
func Cells(n int) int {
	return n * n
}

// Coordinate returns the zero-based row and column of index.
func Coordinate(index, boardSize int) (row, col int) {
	return index / boardSize, index % boardSize
}

// Index is the inverse of Coordinate.
func Index(row, col, boardSize int) int {
	return row*boardSize + col
}

// RowName returns the letter for a zero-based row: A, B, C, ...
func RowName(row int) string {
	return string(rune('A' + row))
}

// ColName returns the one-based column number as a string.
func ColName(col int) string {
	return strconv.Itoa(col + 1)
}

// Label returns the human readable coordinate, e.g. "B3".
func Label(row, col int) string {
	return RowName(row) + ColName(col)
}

// IndexLabel composes Coordinate and Label.
func IndexLabel(index, boardSize int) string {
	return Label(Coordinate(index, boardSize))
}

// ParseLabel turns a label such as "c2" back into a cell index.
func ParseLabel(label string, boardSize int) (int, error) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if len(label) < 2 {
		return 0, fmt.Errorf("label %q too short", label)
	}
	row := int(label[0] - 'A')
	col, err := strconv.Atoi(label[1:])
	if err != nil {
		return 0, fmt.Errorf("label %q: bad column: %w", label, err)
	}
	col--
	if row < 0 || row >= boardSize || col < 0 || col >= boardSize {
		return 0, fmt.Errorf("label %q is outside a %dx%d board", label, boardSize, boardSize)
	}
	return Index(row, col, boardSize), nil
}

// SlotKind classifies a slot of the header grid.
type SlotKind int

const (
	SlotCorner SlotKind = iota
	SlotNumberHeader
	SlotLetterHeader
	SlotCell
)

func (k SlotKind) String() string {
	switch k {
	case SlotCorner:
		return "corner"
	case SlotNumberHeader:
		return "number"
	case SlotLetterHeader:
		return "letter"
	case SlotCell:
		return "cell"
	}
	return "unknown"
}

// Slot is one position of the (n+1)×(n+1) header grid.
//
// Header slots carry Word, an index into the round's word list: the first n
// words label the columns and the next n label the rows. Cell slots carry
// Index, the underlying cell. Fields that do not apply are -1.
type Slot struct {
	Kind       SlotKind
	DisplayRow int
	DisplayCol int
	Index      int
	Word       int
}

// SlotAt resolves display slot number slot on a board of boardSize.
func SlotAt(slot, boardSize int) Slot {
	width := boardSize + 1
	row, col := slot/width, slot%width
	s := Slot{Kind: SlotCell, DisplayRow: row, DisplayCol: col, Index: -1, Word: -1}
	switch {
	case slot == 0:
		s.Kind = SlotCorner
	case row == 0:
		s.Kind = SlotNumberHeader
		s.Word = col - 1
	case col == 0:
		s.Kind = SlotLetterHeader
		s.Word = boardSize + row - 1
	default:
		s.Index = (row-1)*width + (col - row)
	}
	return s
}

// Slots lists every slot of the header grid in display order.
func Slots(boardSize int) []Slot {
	width := boardSize + 1
	out := make([]Slot, width*width)
	for i := range out {
		out[i] = SlotAt(i, boardSize)
	}
	return out
}
