// Package syncclient keeps one participant's view of a session in step with
// the server, either by polling or over a push channel, and issues the
// participant's moves.
//
// All state changes happen on a single event-loop goroutine. Network calls run
// elsewhere and post their results back to the loop, so completions are
// applied strictly one after another in arrival order.
package syncclient

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"crossclues/internal/score"
	"crossclues/internal/types"
)

// Mode selects how the client learns about changes made by other players.
type Mode int

const (
	ModePoll Mode = iota
	ModePush
)

func (m Mode) String() string {
	if m == ModePush {
		return "push"
	}
	return "poll"
}

// ApplyPolicy decides which incoming snapshots replace the view.
type ApplyPolicy int

const (
	// ApplyNewest drops snapshots older than the one already applied.
	ApplyNewest ApplyPolicy = iota
	// ApplyArrival applies every snapshot in the order it arrives.
	ApplyArrival
)

const (
	DefaultPollDelay = 2000 * time.Millisecond

	PromptAbandonRound = "Do you really want to start a new game?"
	PromptPlayAgain    = "Play another one?"
)

// Confirmer asks the human at the keyboard a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Config wires a Client to its collaborators.
type Config struct {
	GameID   string
	PlayerID string

	Mode      Mode
	Policy    ApplyPolicy
	PollDelay time.Duration

	Transport Transport
	// Pusher is required in ModePush.
	Pusher    Pusher
	Confirmer Confirmer

	Tiers       *score.Tables
	TierVariant string

	// PreferredBoardSize pre-fills the board size of the next round; zero
	// keeps the current one.
	PreferredBoardSize func() int

	// OnChange and OnRoundEnd run on the event loop and must not block.
	OnChange   func(View)
	OnRoundEnd func(score.Outcome, View)

	Logger zerolog.Logger
	Now    func() time.Time
}

// View is what the participant currently sees.
type View struct {
	Session              *types.Session
	Stats                score.Stats
	TimerExpired         bool
	GameOverAcknowledged bool
}

// Client is one participant's synchronisation loop.
type Client struct {
	cfg Config
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events    chan func()
	done      chan struct{}
	loopDone  chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	running   atomic.Bool

	view atomic.Pointer[View]

	// Fields below belong to the event loop.
	session      *types.Session
	timerExpired bool
	gameOverAck  bool
	polling      bool
	confirming   bool
	pollTimer    *time.Timer
	roundTimer   *time.Timer
	stream       Stream
}

var (
	ErrMissingTransport = errors.New("syncclient: transport is required")
	ErrMissingPusher    = errors.New("syncclient: push mode needs a pusher")
	ErrMissingIdentity  = errors.New("syncclient: game id and player id are required")
)

// New validates cfg and returns a client that is not yet running.
func New(cfg Config) (*Client, error) {
	if cfg.GameID == "" || cfg.PlayerID == "" {
		return nil, ErrMissingIdentity
	}
	if cfg.Transport == nil {
		return nil, ErrMissingTransport
	}
	if cfg.Mode == ModePush && cfg.Pusher == nil {
		return nil, ErrMissingPusher
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = DefaultPollDelay
	}
	if cfg.Tiers == nil {
		cfg.Tiers = score.Defaults()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("game_id", cfg.GameID).Str("player_id", cfg.PlayerID).Logger(),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan func(), 64),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	c.view.Store(&View{})
	return c, nil
}

// Start runs the event loop and begins synchronising.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		c.running.Store(true)
		go c.loop()
		c.post(func() {
			c.log.Info().Stringer("mode", c.cfg.Mode).Msg("sync started")
			if c.cfg.Mode == ModePush {
				c.connect()
				return
			}
			c.poll()
		})
	})
}

// Close stops the loop, closes any push channel and discards the results of
// requests still in flight. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
	c.startOnce.Do(func() { close(c.loopDone) })
	<-c.loopDone
}

// View returns a copy of the current view.
func (c *Client) View() View {
	v := *c.view.Load()
	v.Session = cloneSession(v.Session)
	return v
}

func (c *Client) loop() {
	defer close(c.loopDone)
	defer c.teardown()
	for {
		select {
		case <-c.done:
			return
		case fn := <-c.events:
			select {
			case <-c.done:
				return
			default:
			}
			fn()
		}
	}
}

func (c *Client) teardown() {
	if c.pollTimer != nil {
		c.pollTimer.Stop()
	}
	if c.roundTimer != nil {
		c.roundTimer.Stop()
	}
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
	c.log.Info().Msg("sync stopped")
}

// post queues fn on the event loop. It reports false once the client is closed.
func (c *Client) post(fn func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the event loop and waits for it. Before Start there is no
// loop to run it, so it reports false at once.
func (c *Client) call(fn func()) bool {
	if !c.running.Load() {
		return false
	}
	finished := make(chan struct{})
	if !c.post(func() { fn(); close(finished) }) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) poll() {
	if c.polling {
		return
	}
	c.polling = true
	stateID := ""
	if c.session != nil {
		stateID = c.session.StateID
	}
	go func() {
		s, err := c.cfg.Transport.GetState(c.ctx, c.cfg.GameID, stateID, c.cfg.PlayerID)
		c.post(func() {
			c.polling = false
			if err != nil {
				c.log.Warn().Err(err).Msg("poll failed")
			} else {
				c.apply(s, "poll")
			}
			c.pollTimer = time.AfterFunc(c.cfg.PollDelay, func() { c.post(c.poll) })
		})
	}()
}

func (c *Client) connect() {
	go func() {
		stream, err := c.cfg.Pusher.Connect(c.ctx, c.cfg.GameID, c.cfg.PlayerID)
		if err != nil {
			c.post(func() {
				c.log.Warn().Err(err).Msg("push connect failed")
				c.reconnectLater()
			})
			return
		}
		// The loop may stop before it adopts the stream; Close still reaches it.
		stop := context.AfterFunc(c.ctx, func() { _ = stream.Close() })
		defer stop()
		if !c.post(func() { c.stream = stream }) {
			_ = stream.Close()
			return
		}
		for {
			s, err := stream.Recv()
			if err != nil {
				c.post(func() {
					if c.stream == stream {
						c.stream = nil
					}
					_ = stream.Close()
					c.log.Warn().Err(err).Msg("push channel dropped")
					c.reconnectLater()
				})
				return
			}
			c.post(func() { c.apply(s, "push") })
		}
	}()
}

func (c *Client) reconnectLater() {
	c.pollTimer = time.AfterFunc(c.cfg.PollDelay, func() { c.post(c.connect) })
}

// apply replaces the view with s, subject to the apply policy.
func (c *Client) apply(s *types.Session, source string) {
	if s == nil {
		return
	}
	if c.cfg.Policy == ApplyNewest && c.sameIncarnation(s) && s.Version < c.session.Version {
		c.log.Debug().
			Str("source", source).
			Int64("version", s.Version).
			Int64("applied", c.session.Version).
			Msg("dropping stale snapshot")
		return
	}

	newRound := c.session == nil || c.session.RoundID != s.RoundID
	c.session = s
	if newRound {
		c.timerExpired = false
		c.gameOverAck = false
		c.armRoundTimer()
	}

	endNow := s.Won && !c.gameOverAck
	if endNow {
		c.gameOverAck = true
		c.stopRoundTimer()
	}
	c.publish()
	if endNow {
		c.endRound()
	}
}

// sameIncarnation reports whether s comes from the session already applied.
// A session the server drops and builds again under the same id restarts its
// version, so versions only order snapshots sharing a creation time.
func (c *Client) sameIncarnation(s *types.Session) bool {
	return c.session != nil && c.session.CreatedAt.Equal(s.CreatedAt)
}

func (c *Client) publish() {
	v := &View{
		Session:              cloneSession(c.session),
		Stats:                score.Compute(c.session),
		TimerExpired:         c.timerExpired,
		GameOverAcknowledged: c.gameOverAck,
	}
	c.view.Store(v)
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(c.View())
	}
}

func (c *Client) stopRoundTimer() {
	if c.roundTimer != nil {
		c.roundTimer.Stop()
		c.roundTimer = nil
	}
}

func (c *Client) armRoundTimer() {
	c.stopRoundTimer()
	s := c.session
	deadline, ok := s.TimerDeadline()
	if !ok || !s.EnforceTimer || s.Won {
		return
	}
	roundID := s.RoundID
	c.roundTimer = time.AfterFunc(deadline.Sub(c.cfg.Now()), func() {
		c.post(func() { c.expire(roundID) })
	})
}

func (c *Client) expire(roundID string) {
	if c.session == nil || c.session.RoundID != roundID || c.gameOverAck {
		return
	}
	c.log.Info().Str("round_id", roundID).Msg("round timer expired")
	c.timerExpired = true
	c.gameOverAck = true
	c.roundTimer = nil
	c.publish()
	c.endRound()
}

func (c *Client) outcome() score.Outcome {
	s := c.session
	st := score.Compute(s)
	tbl, err := c.cfg.Tiers.Variant(c.cfg.TierVariant)
	if err != nil {
		c.log.Error().Err(err).Msg("tier table")
		return score.Outcome{Score: st.Score}
	}
	out, err := tbl.Outcome(s.BoardSize, st.Score)
	if err != nil {
		c.log.Error().Err(err).Int("board_size", s.BoardSize).Msg("tier lookup")
		return score.Outcome{Score: st.Score}
	}
	return out
}

// endRound runs once per round, right after the round is acknowledged as over.
func (c *Client) endRound() {
	out := c.outcome()
	c.log.Info().Int("score", out.Score).Int("tier", out.Tier).Msg("round over")
	if c.cfg.OnRoundEnd != nil {
		c.cfg.OnRoundEnd(out, c.View())
	}
	prompt := PromptPlayAgain
	if out.Message != "" {
		prompt = out.Message + "\n" + PromptPlayAgain
	}
	roundID := c.session.RoundID
	c.ask(prompt, func() {
		if c.session != nil && c.session.RoundID == roundID {
			c.issueNextRound(nil)
		}
	})
}

// ask puts prompt to the Confirmer off the loop and runs yes on the loop when
// the answer is positive.
func (c *Client) ask(prompt string, yes func()) {
	if c.cfg.Confirmer == nil || c.confirming {
		return
	}
	c.confirming = true
	go func() {
		ok := c.cfg.Confirmer.Confirm(c.ctx, prompt)
		c.post(func() {
			c.confirming = false
			if ok {
				yes()
			}
		})
	}()
}

func (c *Client) roundOver() bool {
	return c.session != nil && (c.session.Won || c.timerExpired)
}

// Reveal asks the server to reveal cell index. It reports whether the request
// was sent; moves the local view already rules out are dropped.
func (c *Client) Reveal(index int) bool {
	var sent bool
	c.call(func() {
		s := c.session
		if s == nil || c.roundOver() || index < 0 || index >= len(s.Revealed) || s.Revealed[index] {
			return
		}
		if s.HandAndDiscard && !slices.Contains(s.Hand(c.cfg.PlayerID), index) {
			return
		}
		sent = true
		c.mutate("reveal", func(ctx context.Context) (*types.Session, error) {
			return c.cfg.Transport.Reveal(ctx, c.cfg.GameID, index, c.cfg.PlayerID)
		})
	})
	return sent
}

// Discard asks the server to discard cell index from the player's hand.
func (c *Client) Discard(index int) bool {
	var sent bool
	c.call(func() {
		s := c.session
		if s == nil || !s.HandAndDiscard || c.roundOver() {
			return
		}
		if !slices.Contains(s.Hand(c.cfg.PlayerID), index) {
			return
		}
		sent = true
		c.mutate("discard", func(ctx context.Context) (*types.Session, error) {
			return c.cfg.Transport.Discard(ctx, c.cfg.GameID, index, c.cfg.PlayerID)
		})
	})
	return sent
}

// RoundOption overrides one setting carried into the next round.
type RoundOption func(*types.NextRoundRequest)

func WithBoardSize(n int) RoundOption {
	return func(r *types.NextRoundRequest) { r.BoardSize = n }
}

func WithHandSize(n int) RoundOption {
	return func(r *types.NextRoundRequest) { r.HandSize = n }
}

func WithTimer(durationMS int64, enforce bool) RoundOption {
	return func(r *types.NextRoundRequest) {
		r.TimerDurationMS = durationMS
		r.EnforceTimer = enforce
	}
}

func WithWordSet(name string) RoundOption {
	return func(r *types.NextRoundRequest) { r.WordSet = name; r.Words = nil }
}

func WithWords(list []string) RoundOption {
	return func(r *types.NextRoundRequest) { r.WordSet = ""; r.Words = list }
}

// StartNextRound replaces the current round. A round that is still being
// played is only abandoned after the Confirmer agrees.
func (c *Client) StartNextRound(opts ...RoundOption) {
	c.post(func() {
		if c.session == nil || c.roundOver() {
			c.issueNextRound(opts)
			return
		}
		roundID := c.session.RoundID
		c.ask(PromptAbandonRound, func() {
			if c.session != nil && c.session.RoundID == roundID {
				c.issueNextRound(opts)
			}
		})
	})
}

func (c *Client) nextRoundRequest(opts []RoundOption) types.NextRoundRequest {
	req := types.NextRoundRequest{
		GameID:    c.cfg.GameID,
		PlayerID:  c.cfg.PlayerID,
		CreateNew: true,
	}
	if s := c.session; s != nil {
		req.WordSet = s.WordSet
		req.TimerDurationMS = s.TimerDurationMS
		req.EnforceTimer = s.EnforceTimer
		req.HandSize = s.HandSize
		req.BoardSize = s.BoardSize
	}
	if c.cfg.PreferredBoardSize != nil {
		if n := c.cfg.PreferredBoardSize(); n != 0 {
			req.BoardSize = n
		}
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

func (c *Client) issueNextRound(opts []RoundOption) {
	req := c.nextRoundRequest(opts)
	c.mutate("next round", func(ctx context.Context) (*types.Session, error) {
		return c.cfg.Transport.StartNextRound(ctx, req)
	})
}

// mutate sends a move without waiting for the poll timer. Its response
// replaces the view like any other snapshot.
func (c *Client) mutate(action string, do func(context.Context) (*types.Session, error)) {
	go func() {
		s, err := do(c.ctx)
		c.post(func() {
			if err != nil {
				c.log.Warn().Err(err).Str("action", action).Msg("request failed")
				return
			}
			c.apply(s, action)
		})
	}()
}

func cloneSession(s *types.Session) *types.Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Words = slices.Clone(s.Words)
	cp.Revealed = slices.Clone(s.Revealed)
	if s.Discards != nil {
		cp.Discards = make(map[int]string, len(s.Discards))
		for k, v := range s.Discards {
			cp.Discards[k] = v
		}
	}
	if s.PlayerHand != nil {
		cp.PlayerHand = make(map[string][]int, len(s.PlayerHand))
		for k, v := range s.PlayerHand {
			cp.PlayerHand[k] = slices.Clone(v)
		}
	}
	return &cp
}
