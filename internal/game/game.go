// Package game holds the authoritative state machine for one crossclues
// session: the board, the deck, each player's hand and the win check.
//
// A Game is not safe for concurrent use; callers serialise access.
package game

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"crossclues/internal/board"
	"crossclues/internal/types"
)

const (
	DefaultBoardSize = 4
	DefaultHandSize  = 1
)

var (
	ErrInvalidBoardSize = fmt.Errorf("board size must be between %d and %d", board.MinSize, board.MaxSize)
	ErrInvalidOptions   = errors.New("invalid round options")
	ErrNotEnoughWords   = errors.New("word list too short for board")
)

// Phase is the lifecycle state of a round.
type Phase string

const (
	PhaseInProgress Phase = "in_progress"
	PhaseWon        Phase = "won"
)

// Capabilities selects the product variant a session plays.
type Capabilities struct {
	HandAndDiscard   bool `json:"hand_and_discard"`
	TimerEnforcement bool `json:"timer_enforcement"`
}

// Options are the per-round settings a player may change between rounds.
type Options struct {
	TimerDurationMS int64 `json:"timer_duration_ms"`
	EnforceTimer    bool  `json:"enforce_timer"`
	HandSize        int   `json:"hand_size"`
	BoardSize       int   `json:"board_size"`
}

// Normalize fills defaults and rejects settings no round can be built from.
func (o Options) Normalize() (Options, error) {
	if o.BoardSize == 0 {
		o.BoardSize = DefaultBoardSize
	}
	if !board.ValidSize(o.BoardSize) {
		return o, fmt.Errorf("%w: got %d", ErrInvalidBoardSize, o.BoardSize)
	}
	if o.HandSize < 0 {
		return o, fmt.Errorf("%w: negative hand size %d", ErrInvalidOptions, o.HandSize)
	}
	if o.HandSize == 0 {
		o.HandSize = DefaultHandSize
	}
	if o.TimerDurationMS < 0 {
		return o, fmt.Errorf("%w: negative timer %d", ErrInvalidOptions, o.TimerDurationMS)
	}
	return o, nil
}

// Clock returns the current time. Tests swap it for a fixed one.
type Clock func() time.Time

// Game is one round of a session.
type Game struct {
	ID        string
	RoundID   string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	// RoundStartedAt anchors the round timer.
	RoundStartedAt time.Time

	Deal    Deal
	Options Options
	Caps    Capabilities

	Words    []string
	Revealed []bool
	Score    int
	Won      bool

	// Deck is the draw order; cards before DeckIndex have been dealt.
	Deck        []int
	DeckIndex   int
	PlayerCards map[int]string
	Discards    map[int]string

	now Clock
}

// New builds the first round of session id.
func New(id string, deal Deal, opts Options, caps Capabilities, now Clock) (*Game, error) {
	if now == nil {
		now = time.Now
	}
	g, err := build(id, deal, opts, caps, now)
	if err != nil {
		return nil, err
	}
	g.CreatedAt = g.RoundStartedAt
	g.Version = 1
	return g, nil
}

// NextRound builds the round that supersedes g. The session id, creation time
// and capabilities carry over, the version keeps counting up and everything
// else starts fresh.
func (g *Game) NextRound(deal Deal, opts Options) (*Game, error) {
	next, err := build(g.ID, deal, opts, g.Caps, g.now)
	if err != nil {
		return nil, err
	}
	next.CreatedAt = g.CreatedAt
	next.Version = g.Version + 1
	return next, nil
}

// NextDeal is the word state a following round on a board of nextSize deals from.
func (g *Game) NextDeal(nextSize int) Deal {
	return g.Deal.Next(g.Options.BoardSize, nextSize)
}

func build(id string, deal Deal, opts Options, caps Capabilities, now Clock) (*Game, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	n := opts.BoardSize
	if deal.PermIndex+WordsPerRound(n) > len(deal.WordList) {
		if WordsPerRound(n) > len(deal.WordList) {
			return nil, fmt.Errorf("%w: %d words for board size %d", ErrNotEnoughWords, len(deal.WordList), n)
		}
		deal.PermIndex = 0
	}
	if !caps.HandAndDiscard {
		opts.HandSize = 0
	}
	if !caps.TimerEnforcement {
		opts.EnforceTimer = false
	}

	ts := now()
	cells := board.Cells(n)
	g := &Game{
		ID:             id,
		RoundID:        uuid.NewString(),
		RoundStartedAt: ts,
		UpdatedAt:      ts,
		Deal:           deal,
		Options:        opts,
		Caps:           caps,
		Words:          deal.words(n),
		Revealed:       make([]bool, cells),
		Deck:           deal.deck(cells),
		PlayerCards:    make(map[int]string),
		Discards:       make(map[int]string),
		now:            now,
	}
	if !caps.HandAndDiscard {
		// Every cell is in play from the start.
		g.DeckIndex = cells
	}
	return g, nil
}

// StateID is the opaque token that changes whenever the session mutates.
func (g *Game) StateID() string {
	return fmt.Sprintf("%019d", g.Version)
}

// Phase reports whether the round is still being played.
func (g *Game) Phase() Phase {
	if g.Won {
		return PhaseWon
	}
	return PhaseInProgress
}

// TimerExpired reports whether an enforced round timer has run out.
func (g *Game) TimerExpired() bool {
	if !g.Caps.TimerEnforcement || !g.Options.EnforceTimer || g.Options.TimerDurationMS <= 0 {
		return false
	}
	deadline := g.RoundStartedAt.Add(time.Duration(g.Options.TimerDurationMS) * time.Millisecond)
	return !g.now().Before(deadline)
}

func (g *Game) playable() bool {
	return !g.Won && !g.TimerExpired()
}

func (g *Game) inRange(idx int) bool {
	return idx >= 0 && idx < len(g.Revealed)
}

// Reveal marks cell idx as guessed. In the hand variant the card has to be in
// playerID's hand. It reports whether anything changed.
func (g *Game) Reveal(playerID string, idx int) bool {
	if !g.playable() || !g.inRange(idx) || g.Revealed[idx] {
		return false
	}
	if g.Caps.HandAndDiscard {
		if g.PlayerCards[idx] != playerID {
			return false
		}
		delete(g.PlayerCards, idx)
		g.Revealed[idx] = true
		g.draw(playerID)
	} else {
		g.Revealed[idx] = true
	}
	g.touch()
	return true
}

// Discard moves a card from playerID's hand to the discard pile and refills
// the hand.
func (g *Game) Discard(playerID string, idx int) bool {
	if !g.Caps.HandAndDiscard || !g.playable() || !g.inRange(idx) {
		return false
	}
	if g.PlayerCards[idx] != playerID {
		return false
	}
	delete(g.PlayerCards, idx)
	g.Discards[idx] = playerID
	g.draw(playerID)
	g.touch()
	return true
}

// Draw tops playerID's hand up to the hand size.
func (g *Game) Draw(playerID string) bool {
	if !g.Caps.HandAndDiscard || !g.playable() || playerID == "" {
		return false
	}
	if !g.draw(playerID) {
		return false
	}
	g.touch()
	return true
}

func (g *Game) draw(playerID string) bool {
	held := lo.CountBy(lo.Values(g.PlayerCards), func(p string) bool { return p == playerID })
	drew := false
	for held < g.Options.HandSize && g.DeckIndex < len(g.Deck) {
		g.PlayerCards[g.Deck[g.DeckIndex]] = playerID
		g.DeckIndex++
		held++
		drew = true
	}
	return drew
}

func (g *Game) touch() {
	g.UpdatedAt = g.now()
	g.Version++
	g.checkWinningCondition()
}

// checkWinningCondition recomputes the score and latches Won the first time
// the round is complete.
func (g *Game) checkWinningCondition() {
	g.Score = lo.Count(g.Revealed, true)
	if g.Won {
		return
	}
	var done bool
	if g.Caps.HandAndDiscard {
		done = g.DeckIndex == len(g.Deck) && len(g.PlayerCards) == 0
	} else {
		done = g.Score == len(g.Revealed)
	}
	if !done {
		return
	}
	g.Won = true
	log.Info().
		Str("game_id", g.ID).
		Str("round_id", g.RoundID).
		Int("score", g.Score).
		Int("discards", len(g.Discards)).
		Msg("round won")
}

// Hand returns the cells playerID holds, in ascending order.
func (g *Game) Hand(playerID string) []int {
	hand := lo.Keys(lo.PickByValues(g.PlayerCards, []string{playerID}))
	slices.Sort(hand)
	return hand
}

// Snapshot returns the session as playerID sees it. Other players' hands are
// left out; only the total number of held cards is shared.
func (g *Game) Snapshot(playerID string) types.Session {
	s := types.Session{
		ID:               g.ID,
		RoundID:          g.RoundID,
		StateID:          g.StateID(),
		Version:          g.Version,
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        g.UpdatedAt,
		RoundStartedAt:   g.RoundStartedAt,
		BoardSize:        g.Options.BoardSize,
		WordSet:          g.Deal.WordSet,
		Words:            slices.Clone(g.Words),
		Revealed:         slices.Clone(g.Revealed),
		Discards:         make(map[int]string, len(g.Discards)),
		DiscardCount:     len(g.Discards),
		DeckIndex:        g.DeckIndex,
		PlayerHand:       map[string][]int{},
		HandCards:        len(g.PlayerCards),
		Score:            g.Score,
		Won:              g.Won,
		TimerDurationMS:  g.Options.TimerDurationMS,
		EnforceTimer:     g.Options.EnforceTimer,
		HandSize:         g.Options.HandSize,
		HandAndDiscard:   g.Caps.HandAndDiscard,
		TimerEnforcement: g.Caps.TimerEnforcement,
	}
	for idx, p := range g.Discards {
		s.Discards[idx] = p
	}
	if hand := g.Hand(playerID); playerID != "" && len(hand) > 0 {
		s.PlayerHand[playerID] = hand
	}
	return s
}

// Validate checks that every cell sits in exactly one place: revealed,
// discarded, in a hand or still in the deck.
func (g *Game) Validate() error {
	cells := len(g.Revealed)
	if len(g.Deck) != cells {
		return fmt.Errorf("deck has %d cards for %d cells", len(g.Deck), cells)
	}
	if g.Score != lo.Count(g.Revealed, true) {
		return fmt.Errorf("score %d does not match %d revealed cells", g.Score, lo.Count(g.Revealed, true))
	}
	inDeck := make(map[int]bool, cells)
	for _, c := range g.Deck[g.DeckIndex:] {
		inDeck[c] = true
	}
	for c := 0; c < cells; c++ {
		places := 0
		if g.Revealed[c] {
			places++
		}
		if _, ok := g.Discards[c]; ok {
			places++
		}
		if _, ok := g.PlayerCards[c]; ok {
			places++
		}
		if inDeck[c] {
			places++
		}
		if g.Caps.HandAndDiscard && places != 1 {
			return fmt.Errorf("cell %s is in %d places", board.IndexLabel(c, g.Options.BoardSize), places)
		}
		if !g.Caps.HandAndDiscard && places > 1 {
			return fmt.Errorf("cell %s is in %d places", board.IndexLabel(c, g.Options.BoardSize), places)
		}
	}
	return nil
}
