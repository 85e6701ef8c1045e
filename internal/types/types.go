package types

import "time"

// Session is a full snapshot of one game session as seen by a single player.
// Snapshots are always complete; clients replace their view wholesale.
type Session struct {
	ID             string    `json:"id"`
	RoundID        string    `json:"round_id"`
	StateID        string    `json:"state_id"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	RoundStartedAt time.Time `json:"round_started_at"`

	BoardSize    int              `json:"board_size"`
	WordSet      string           `json:"word_set"`
	Words        []string         `json:"words"`
	Revealed     []bool           `json:"revealed"`
	Discards     map[int]string   `json:"discards"`
	DiscardCount int              `json:"discard_count"`
	DeckIndex    int              `json:"deck_index"`
	PlayerHand   map[string][]int `json:"player_hand"`
	HandCards    int              `json:"hand_cards"`
	Score        int              `json:"score"`
	Won          bool             `json:"won"`

	TimerDurationMS int64 `json:"timer_duration_ms,omitempty"`
	EnforceTimer    bool  `json:"enforce_timer,omitempty"`
	HandSize        int   `json:"hand_size,omitempty"`

	HandAndDiscard   bool `json:"hand_and_discard"`
	TimerEnforcement bool `json:"timer_enforcement"`
}

// Hand returns the cells currently held by playerID.
func (s *Session) Hand(playerID string) []int {
	if s == nil || s.PlayerHand == nil {
		return nil
	}
	return s.PlayerHand[playerID]
}

// TimerDeadline reports when the round timer runs out. ok is false when the
// round has no timer.
func (s *Session) TimerDeadline() (deadline time.Time, ok bool) {
	if s == nil || s.TimerDurationMS <= 0 {
		return time.Time{}, false
	}
	return s.RoundStartedAt.Add(time.Duration(s.TimerDurationMS) * time.Millisecond), true
}

// StateRequest is the body of POST /game-state.
type StateRequest struct {
	GameID   string `json:"game_id" binding:"required"`
	StateID  string `json:"state_id"`
	PlayerID string `json:"player_id" binding:"required"`
}

// ActionRequest is the body of POST /guess and POST /discard.
type ActionRequest struct {
	GameID   string `json:"game_id" binding:"required"`
	Index    int    `json:"index"`
	PlayerID string `json:"player_id" binding:"required"`
}

// NextRoundRequest is the body of POST /next-game.
type NextRoundRequest struct {
	GameID          string   `json:"game_id" binding:"required"`
	PlayerID        string   `json:"player_id" binding:"required"`
	WordSet         string   `json:"word_set"`
	Words           []string `json:"words,omitempty"`
	CreateNew       bool     `json:"create_new"`
	TimerDurationMS int64    `json:"timer_duration_ms"`
	EnforceTimer    bool     `json:"enforce_timer"`
	HandSize        int      `json:"hand_size"`
	BoardSize       int      `json:"board_size"`
}

// ErrorResponse is returned with any non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}
