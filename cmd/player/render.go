package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"crossclues/internal/board"
	"crossclues/internal/prefs"
	"crossclues/internal/syncclient"
	"crossclues/internal/types"
)

// palette holds the styles a board is drawn with.
type palette struct {
	header    *pterm.Style
	revealed  *pterm.Style
	discarded *pterm.Style
	held      *pterm.Style
}

func paletteFor(p prefs.Preferences) palette {
	pal := palette{
		header:    pterm.NewStyle(pterm.FgBlack, pterm.BgLightWhite, pterm.Bold),
		revealed:  pterm.NewStyle(pterm.FgLightGreen),
		discarded: pterm.NewStyle(pterm.FgLightRed),
		held:      pterm.NewStyle(pterm.FgLightCyan, pterm.Bold),
	}
	if p.DarkMode {
		pal.header = pterm.NewStyle(pterm.FgLightWhite, pterm.BgDarkGray, pterm.Bold)
	}
	if p.ColorBlind {
		pal.revealed = pterm.NewStyle(pterm.FgLightBlue)
		pal.discarded = pterm.NewStyle(pterm.FgYellow)
	}
	return pal
}

// wordAt guards against a snapshot with fewer words than the board needs.
func wordAt(s *types.Session, i int) string {
	if i < 0 || i >= len(s.Words) {
		return "?"
	}
	return s.Words[i]
}

// clue returns the column and row words that meet at cell index.
func clue(s *types.Session, index int) (col, row string) {
	r, c := board.Coordinate(index, s.BoardSize)
	return wordAt(s, c), wordAt(s, s.BoardSize+r)
}

// gridData lays the session out on the header grid: words along the top and
// left, one entry per cell.
func gridData(s *types.Session, playerID string, pal palette) [][]string {
	n := s.BoardSize
	held := map[int]bool{}
	for _, c := range s.Hand(playerID) {
		held[c] = true
	}
	rows := make([][]string, n+1)
	for i := range rows {
		rows[i] = make([]string, n+1)
	}
	for _, slot := range board.Slots(n) {
		var text string
		switch slot.Kind {
		case board.SlotCorner:
			text = ""
		case board.SlotNumberHeader:
			text = fmt.Sprintf("%s %s", board.ColName(slot.DisplayCol-1), wordAt(s, slot.Word))
		case board.SlotLetterHeader:
			text = fmt.Sprintf("%s %s", board.RowName(slot.DisplayRow-1), wordAt(s, slot.Word))
		case board.SlotCell:
			text = cellText(s, slot.Index, held[slot.Index], pal)
		}
		rows[slot.DisplayRow][slot.DisplayCol] = text
	}
	return rows
}

func cellText(s *types.Session, index int, held bool, pal palette) string {
	label := board.IndexLabel(index, s.BoardSize)
	switch {
	case index < len(s.Revealed) && s.Revealed[index]:
		return pal.revealed.Sprint("✔ " + label)
	case s.Discards[index] != "":
		return pal.discarded.Sprint("✘ " + label)
	case held:
		return pal.held.Sprint("[" + label + "]")
	}
	return label
}

// statusLine summarises the counters under the board.
func statusLine(v syncclient.View, now time.Time) string {
	s := v.Session
	parts := []string{fmt.Sprintf("Score %d/%d", v.Stats.Score, len(s.Revealed))}
	if s.HandAndDiscard {
		parts = append(parts,
			fmt.Sprintf("Discards %d", v.Stats.DiscardCount),
			fmt.Sprintf("Deck %d", v.Stats.DeckSize),
			fmt.Sprintf("In hands %d", v.Stats.HandSize))
	}
	if deadline, ok := s.TimerDeadline(); ok {
		left := deadline.Sub(now).Round(time.Second)
		if left < 0 || v.TimerExpired {
			left = 0
		}
		parts = append(parts, fmt.Sprintf("Time %s", left))
	}
	return strings.Join(parts, " | ")
}

// handLines lists the player's cards with the words they connect.
func handLines(s *types.Session, playerID string) []string {
	var out []string
	for _, c := range s.Hand(playerID) {
		col, row := clue(s, c)
		out = append(out, fmt.Sprintf("%s: %s × %s", board.IndexLabel(c, s.BoardSize), col, row))
	}
	return out
}

// render draws the whole view.
func render(v syncclient.View, playerID string, p prefs.Preferences, now time.Time) {
	s := v.Session
	if s == nil {
		pterm.Info.Println("Waiting for the session...")
		return
	}
	if p.Fullscreen {
		pterm.Print("\033[H\033[2J")
	}
	pal := paletteFor(p)
	table, err := pterm.DefaultTable.
		WithHasHeader().
		WithHeaderStyle(pal.header).
		WithBoxed().
		WithData(gridData(s, playerID, pal)).
		Srender()
	if err != nil {
		pterm.Error.Printfln("render board: %v", err)
		return
	}
	pterm.Println(table)
	pterm.Println(statusLine(v, now))
	if hand := handLines(s, playerID); len(hand) > 0 {
		pterm.DefaultBox.WithTitle("Your cards").Println(strings.Join(hand, "\n"))
	}
	if s.Won {
		pterm.Success.Println("Board complete!")
	} else if v.TimerExpired {
		pterm.Warning.Println("Time is up.")
	}
}
