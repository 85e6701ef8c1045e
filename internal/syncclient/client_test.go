package syncclient

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crossclues/internal/game"
	"crossclues/internal/score"
	"crossclues/internal/types"
	"crossclues/internal/words"
)

// fakeServer is an in-process Transport backed by a real game.
type fakeServer struct {
	mu          sync.Mutex
	g           *game.Game
	getCalls    int
	inFlight    int
	maxInFlight int
	// hold parks GetState call number holdOnCall (any call when zero) after
	// it has taken its snapshot.
	hold       chan struct{}
	holdOnCall int
	nextReqs   []types.NextRoundRequest
	failGets   int
}

func newFakeServer(t *testing.T, opts game.Options, caps game.Capabilities) *fakeServer {
	t.Helper()
	g, err := game.New("sync-test", game.NewDeal(words.DefaultSet, words.Default()), opts, caps, nil)
	if err != nil {
		t.Fatalf("game.New: %v", err)
	}
	return &fakeServer{g: g}
}

func (f *fakeServer) snapshot(playerID string) *types.Session {
	s := f.g.Snapshot(playerID)
	return &s
}

func (f *fakeServer) GetState(ctx context.Context, gameID, stateID, playerID string) (*types.Session, error) {
	f.mu.Lock()
	f.getCalls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	if f.failGets > 0 {
		f.failGets--
		f.inFlight--
		f.mu.Unlock()
		return nil, errors.New("connection refused")
	}
	f.g.Draw(playerID)
	s := f.snapshot(playerID)
	hold := f.hold
	if f.holdOnCall != 0 && f.getCalls != f.holdOnCall {
		hold = nil
	}
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return s, nil
}

func (f *fakeServer) Reveal(_ context.Context, _ string, index int, playerID string) (*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.g.Reveal(playerID, index)
	return f.snapshot(playerID), nil
}

func (f *fakeServer) Discard(_ context.Context, _ string, index int, playerID string) (*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.g.Discard(playerID, index)
	return f.snapshot(playerID), nil
}

func (f *fakeServer) StartNextRound(_ context.Context, req types.NextRoundRequest) (*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextReqs = append(f.nextReqs, req)
	opts := game.Options{
		TimerDurationMS: req.TimerDurationMS,
		EnforceTimer:    req.EnforceTimer,
		HandSize:        req.HandSize,
		BoardSize:       req.BoardSize,
	}
	next, err := f.g.NextRound(f.g.NextDeal(req.BoardSize), opts)
	if err != nil {
		return nil, err
	}
	f.g = next
	return f.snapshot(req.PlayerID), nil
}

func (f *fakeServer) revealAll(playerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.g.Revealed {
		f.g.Reveal(playerID, i)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.GameID == "" {
		cfg.GameID = "sync-test"
	}
	if cfg.PlayerID == "" {
		cfg.PlayerID = "p1"
	}
	if cfg.PollDelay == 0 {
		cfg.PollDelay = 10 * time.Millisecond
	}
	cfg.Logger = zerolog.Nop()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func hasSession(c *Client) func() bool {
	return func() bool { return c.View().Session != nil }
}

// TestNewValidatesConfig checks required collaborators.
func TestNewValidatesConfig(t *testing.T) {
	tr := &fakeServer{}
	tests := []struct {
		cfg  Config
		want error
	}{
		{Config{PlayerID: "p", Transport: tr}, ErrMissingIdentity},
		{Config{GameID: "g", PlayerID: "p"}, ErrMissingTransport},
		{Config{GameID: "g", PlayerID: "p", Transport: tr, Mode: ModePush}, ErrMissingPusher},
	}
	for _, tt := range tests {
		if _, err := New(tt.cfg); !errors.Is(err, tt.want) {
			t.Errorf("New(%+v) error = %v, want %v", tt.cfg, err, tt.want)
		}
	}
}

// TestPollLoopIsSequential checks the poll loop re-arms itself and never has
// two requests outstanding, even across failures.
func TestPollLoopIsSequential(t *testing.T) {
	srv := newFakeServer(t, game.Options{BoardSize: 3}, game.Capabilities{})
	srv.failGets = 2
	c := newTestClient(t, Config{Transport: srv})
	c.Start()

	waitFor(t, "several polls", func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.getCalls >= 5
	})
	srv.mu.Lock()
	maxInFlight := srv.maxInFlight
	srv.mu.Unlock()
	if maxInFlight != 1 {
		t.Errorf("max polls in flight = %d, want 1", maxInFlight)
	}
	if c.View().Session == nil {
		t.Error("view never populated after failed polls recovered")
	}
}

// TestRevealUpdatesView checks a move goes out immediately and its response
// becomes the view.
func TestRevealUpdatesView(t *testing.T) {
	srv := newFakeServer(t, game.Options{BoardSize: 3}, game.Capabilities{})
	c := newTestClient(t, Config{Transport: srv, PollDelay: time.Hour})
	c.Start()
	waitFor(t, "first snapshot", hasSession(c))

	if !c.Reveal(2) {
		t.Fatal("Reveal(2) was not sent")
	}
	waitFor(t, "reveal applied", func() bool {
		v := c.View()
		return v.Session.Revealed[2]
	})
	v := c.View()
	if v.Stats.Score != 1 || v.Session.Score != 1 {
		t.Errorf("score = %d / %d, want 1", v.Stats.Score, v.Session.Score)
	}
	if c.Reveal(2) {
		t.Error("Reveal of an already revealed cell was sent")
	}
	if c.Reveal(9) || c.Reveal(-1) {
		t.Error("Reveal of an out-of-range cell was sent")
	}
	if c.Discard(0) {
		t.Error("Discard sent in the plain variant")
	}
}

// TestViewIsACopy checks callers cannot change the client's state.
func TestViewIsACopy(t *testing.T) {
	srv := newFakeServer(t, game.Options{BoardSize: 3}, game.Capabilities{})
	c := newTestClient(t, Config{Transport: srv, PollDelay: time.Hour})
	c.Start()
	waitFor(t, "first snapshot", hasSession(c))

	v := c.View()
	v.Session.Revealed[0] = true
	v.Session.Words[0] = "CHANGED"
	again := c.View()
	if again.Session.Revealed[0] || again.Session.Words[0] == "CHANGED" {
		t.Error("View shares memory with the client")
	}
}

type appliedView struct {
	version  int64
	score    int
	revealed int
}

func racePollAndReveal(t *testing.T, policy ApplyPolicy) []appliedView {
	t.Helper()
	srv := newFakeServer(t, game.Options{BoardSize: 3}, game.Capabilities{})
	// The second poll captures the pre-reveal state and is parked there.
	srv.holdOnCall = 2
	hold := make(chan struct{})
	srv.hold = hold

	var mu sync.Mutex
	var applied []appliedView
	c := newTestClient(t, Config{
		Transport: srv,
		Policy:    policy,
		PollDelay: 20 * time.Millisecond,
		OnChange: func(v View) {
			n := 0
			for _, r := range v.Session.Revealed {
				if r {
					n++
				}
			}
			mu.Lock()
			applied = append(applied, appliedView{v.Session.Version, v.Session.Score, n})
			mu.Unlock()
		},
	})
	c.Start()
	waitFor(t, "parked poll", func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.getCalls == 2 && srv.inFlight == 1
	})

	if !c.Reveal(4) {
		t.Fatal("Reveal(4) was not sent")
	}
	waitFor(t, "reveal applied", func() bool { return c.View().Session.Revealed[4] })

	close(hold)
	waitFor(t, "parked poll finished", func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.inFlight == 0
	})
	// Give the stale response time to reach the loop.
	time.Sleep(15 * time.Millisecond)
	c.Close()

	mu.Lock()
	defer mu.Unlock()
	return slices.Clone(applied)
}

// TestApplyNewestDropsStaleSnapshot checks a poll response captured before a
// reveal cannot overwrite the reveal's newer snapshot.
func TestApplyNewestDropsStaleSnapshot(t *testing.T) {
	applied := racePollAndReveal(t, ApplyNewest)
	for i := 1; i < len(applied); i++ {
		if applied[i].version < applied[i-1].version {
			t.Errorf("version went back from %d to %d", applied[i-1].version, applied[i].version)
		}
	}
}

// TestApplyArrivalReplacesWhole checks the arrival policy lets the last
// response win, and that every applied view is one whole snapshot.
func TestApplyArrivalReplacesWhole(t *testing.T) {
	applied := racePollAndReveal(t, ApplyArrival)
	wentBack := false
	for i, a := range applied {
		if a.score != a.revealed {
			t.Errorf("view %d mixes snapshots: score %d, %d revealed", i, a.score, a.revealed)
		}
		if a.revealed != int(a.version-1) {
			t.Errorf("view %d: version %d with %d revealed", i, a.version, a.revealed)
		}
		if i > 0 && a.version < applied[i-1].version {
			wentBack = true
		}
	}
	if !wentBack {
		t.Errorf("stale poll response was not applied on arrival: %+v", applied)
	}
}

// TestRoundEndFiresOnce checks the end-of-round flow runs once no matter how
// many won snapshots arrive.
func TestRoundEndFiresOnce(t *testing.T) {
	srv := newFakeServer(t, game.Options{BoardSize: 3}, game.Capabilities{})
	var ends, asks atomic.Int32
	var gotOutcome atomic.Value
	c := newTestClient(t, Config{
		Transport: srv,
		Confirmer: ConfirmFunc(func(context.Context, string) bool {
			asks.Add(1)
			return false
		}),
		OnRoundEnd: func(out score.Outcome, _ View) {
			ends.Add(1)
			gotOutcome.Store(out)
		},
	})
	srv.revealAll("p1")
	c.Start()

	waitFor(t, "several won polls", func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.getCalls >= 4
	})
	if n := ends.Load(); n != 1 {
		t.Errorf("OnRoundEnd ran %d times, want 1", n)
	}
	if n := asks.Load(); n != 1 {
		t.Errorf("Confirmer asked %d times, want 1", n)
	}
	out := gotOutcome.Load().(score.Outcome)
	if out.Tier != 4 || out.Score != 9 {
		t.Errorf("outcome = %+v, want top tier with score 9", out)
	}
	if !c.View().GameOverAcknowledged {
		t.Error("view not acknowledged as over")
	}
}

// TestPlayAgainStartsNextRound checks a yes to the end-of-round prompt starts
// a new round and resets the round flags.
func TestPlayAgainStartsNextRound(t *testing.T) {
	srv := newFakeServer(t, game.Options{BoardSize: 3}, game.Capabilities{})
	var prompt atomic.Value
	var once sync.Once
	c := newTestClient(t, Config{
		Transport: srv,
		PollDelay: time.Hour,
		Confirmer: ConfirmFunc(func(_ context.Context, p string) bool {
			answer := false
			once.Do(func() { prompt.Store(p); answer = true })
			return answer
		}),
		PreferredBoardSize: func() int { return 5 },
	})
	srv.revealAll("p1")
	firstRound := srv.g.RoundID
	c.Start()

	waitFor(t, "next round", func() bool {
		v := c.View()
		return v.Session != nil && v.Session.RoundID != firstRound
	})
	v := c.View()
	if v.Session.Won || v.GameOverAcknowledged || v.TimerExpired {
		t.Errorf("new round inherited end-of-round state: %+v", v)
	}
	if v.Session.BoardSize != 5 || len(v.Session.Revealed) != 25 {
		t.Errorf("board size = %d, want preferred 5", v.Session.BoardSize)
	}
	p, _ := prompt.Load().(string)
	if p == "" || p[len(p)-len(PromptPlayAgain):] != PromptPlayAgain {
		t.Errorf("prompt = %q", p)
	}
	srv.mu.Lock()
	req := srv.nextReqs[0]
	srv.mu.Unlock()
	if !req.CreateNew || req.WordSet != words.DefaultSet {
		t.Errorf("next round request = %+v", req)
	}
}

// TestStartNextRoundNeedsConfirmation checks an unfinished round is only
// abandoned after the Confirmer agrees, and that overrides are carried.
func TestStartNextRoundNeedsConfirmation(t *testing.T) {
	srv := newFakeServer(t, game.Options{BoardSize: 4}, game.Capabilities{})
	answers := make(chan bool, 2)
	var prompts []string
	var mu sync.Mutex
	c := newTestClient(t, Config{
		Transport: srv,
		PollDelay: time.Hour,
		Confirmer: ConfirmFunc(func(_ context.Context, p string) bool {
			mu.Lock()
			prompts = append(prompts, p)
			mu.Unlock()
			return <-answers
		}),
	})
	c.Start()
	waitFor(t, "first snapshot", hasSession(c))
	first := c.View().Session.RoundID

	answers <- false
	c.StartNextRound()
	waitFor(t, "first prompt", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(prompts) == 1
	})
	time.Sleep(20 * time.Millisecond)
	srv.mu.Lock()
	if len(srv.nextReqs) != 0 {
		t.Error("round abandoned without confirmation")
	}
	srv.mu.Unlock()

	answers <- true
	c.StartNextRound(WithBoardSize(3), WithTimer(90_000, false))
	waitFor(t, "confirmed next round", func() bool {
		return c.View().Session.RoundID != first
	})
	mu.Lock()
	if prompts[0] != PromptAbandonRound {
		t.Errorf("prompt = %q", prompts[0])
	}
	mu.Unlock()
	v := c.View()
	if v.Session.BoardSize != 3 || v.Session.TimerDurationMS != 90_000 {
		t.Errorf("overrides not applied: board %d timer %d", v.Session.BoardSize, v.Session.TimerDurationMS)
	}
}

// TestTimerExpiryEndsRound checks an enforced timer ends the round locally
// and blocks further moves.
func TestTimerExpiryEndsRound(t *testing.T) {
	srv := newFakeServer(t,
		game.Options{BoardSize: 3, TimerDurationMS: 80, EnforceTimer: true},
		game.Capabilities{TimerEnforcement: true})
	var ends atomic.Int32
	c := newTestClient(t, Config{
		Transport:  srv,
		OnRoundEnd: func(score.Outcome, View) { ends.Add(1) },
	})
	c.Start()

	waitFor(t, "timer expiry", func() bool { return c.View().TimerExpired })
	v := c.View()
	if v.Session.Won {
		t.Error("expired round reported as won")
	}
	if !v.GameOverAcknowledged {
		t.Error("expiry not acknowledged")
	}
	if c.Reveal(0) {
		t.Error("Reveal sent after timer expiry")
	}
	time.Sleep(50 * time.Millisecond)
	if n := ends.Load(); n != 1 {
		t.Errorf("OnRoundEnd ran %d times, want 1", n)
	}
}

// TestHandMoves checks hand guards in the hand and discard variant.
func TestHandMoves(t *testing.T) {
	srv := newFakeServer(t, game.Options{BoardSize: 3, HandSize: 2}, game.Capabilities{HandAndDiscard: true})
	c := newTestClient(t, Config{Transport: srv, PollDelay: time.Hour})
	c.Start()
	waitFor(t, "dealt hand", func() bool {
		v := c.View()
		return v.Session != nil && len(v.Session.Hand("p1")) == 2
	})
	hand := c.View().Session.Hand("p1")
	notMine := -1
	for i := 0; i < 9; i++ {
		if i != hand[0] && i != hand[1] {
			notMine = i
			break
		}
	}
	if c.Reveal(notMine) || c.Discard(notMine) {
		t.Error("move on a card outside the hand was sent")
	}
	if !c.Discard(hand[0]) {
		t.Fatal("Discard of own card was not sent")
	}
	waitFor(t, "discard applied", func() bool { return c.View().Stats.DiscardCount == 1 })
	if got := c.View().Session.Discards[hand[0]]; got != "p1" {
		t.Errorf("discards[%d] = %q", hand[0], got)
	}
}

// TestCloseDiscardsInFlight checks results arriving after Close are dropped.
func TestCloseDiscardsInFlight(t *testing.T) {
	srv := newFakeServer(t, game.Options{BoardSize: 3}, game.Capabilities{})
	hold := make(chan struct{})
	srv.hold = hold
	var changes atomic.Int32
	c := newTestClient(t, Config{Transport: srv, OnChange: func(View) { changes.Add(1) }})
	c.Start()
	waitFor(t, "parked poll", func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.inFlight == 1
	})
	c.Close()
	close(hold)
	time.Sleep(30 * time.Millisecond)
	if changes.Load() != 0 || c.View().Session != nil {
		t.Error("result applied after Close")
	}
	if c.Reveal(0) {
		t.Error("Reveal sent after Close")
	}
	c.Close()
}

// chanPusher hands out streams fed from a channel.
type chanPusher struct {
	mu       sync.Mutex
	connects int
	streams  chan *chanStream
}

type chanStream struct {
	snaps  chan *types.Session
	closed chan struct{}
	once   sync.Once
}

func newChanStream() *chanStream {
	return &chanStream{snaps: make(chan *types.Session, 4), closed: make(chan struct{})}
}

func (s *chanStream) Recv() (*types.Session, error) {
	select {
	case snap, ok := <-s.snaps:
		if !ok {
			return nil, io.EOF
		}
		return snap, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *chanStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (p *chanPusher) Connect(ctx context.Context, _, _ string) (Stream, error) {
	p.mu.Lock()
	p.connects++
	p.mu.Unlock()
	select {
	case s := <-p.streams:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TestPushModeReconnects checks deliveries replace the view and a dropped
// channel is reopened.
func TestPushModeReconnects(t *testing.T) {
	srv := newFakeServer(t, game.Options{BoardSize: 3}, game.Capabilities{})
	pusher := &chanPusher{streams: make(chan *chanStream, 2)}
	first, second := newChanStream(), newChanStream()
	pusher.streams <- first
	pusher.streams <- second

	c := newTestClient(t, Config{Transport: srv, Mode: ModePush, Pusher: pusher})
	c.Start()

	first.snaps <- srv.snapshot("p1")
	waitFor(t, "first push", hasSession(c))

	srv.mu.Lock()
	srv.g.Reveal("p1", 1)
	snap := srv.snapshot("p1")
	srv.mu.Unlock()

	close(first.snaps)
	waitFor(t, "reconnect", func() bool {
		pusher.mu.Lock()
		defer pusher.mu.Unlock()
		return pusher.connects == 2
	})
	second.snaps <- snap
	waitFor(t, "push after reconnect", func() bool { return c.View().Session.Revealed[1] })

	c.Close()
	select {
	case <-second.closed:
	case <-time.After(time.Second):
		t.Error("push stream not closed on Close")
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.getCalls != 0 {
		t.Errorf("push mode polled %d times", srv.getCalls)
	}
}

// TestRecreatedSessionReplacesView checks a session the server rebuilt under
// the same id replaces the view even though its version starts over.
func TestRecreatedSessionReplacesView(t *testing.T) {
	srv := newFakeServer(t, game.Options{BoardSize: 3}, game.Capabilities{})
	c := newTestClient(t, Config{Transport: srv})
	c.Start()

	srv.mu.Lock()
	for i := 0; i < 5; i++ {
		srv.g.Reveal("p1", i)
	}
	srv.mu.Unlock()
	waitFor(t, "five reveals", func() bool {
		s := c.View().Session
		return s != nil && s.Score == 5
	})

	later := func() time.Time { return time.Now().Add(time.Hour) }
	fresh, err := game.New("sync-test", game.NewDeal(words.DefaultSet, words.Default()), game.Options{BoardSize: 3}, game.Capabilities{}, later)
	if err != nil {
		t.Fatalf("game.New: %v", err)
	}
	srv.mu.Lock()
	srv.g = fresh
	srv.mu.Unlock()

	waitFor(t, "recreated session", func() bool {
		s := c.View().Session
		return s.RoundID == fresh.RoundID && s.Score == 0 && s.Version == 1
	})
	if !c.Reveal(0) {
		t.Fatal("Reveal(0) on the recreated board was refused")
	}
	waitFor(t, "reveal on recreated board", func() bool { return c.View().Session.Score == 1 })
}

// TestMovesBeforeStartAreRefused checks moves do not block without a loop.
func TestMovesBeforeStartAreRefused(t *testing.T) {
	srv := newFakeServer(t, game.Options{BoardSize: 3}, game.Capabilities{})
	c := newTestClient(t, Config{Transport: srv})

	results := make(chan bool, 2)
	go func() {
		results <- c.Reveal(0)
		results <- c.Discard(0)
	}()
	for i := 0; i < 2; i++ {
		select {
		case sent := <-results:
			if sent {
				t.Error("move sent before Start")
			}
		case <-time.After(time.Second):
			t.Fatal("move blocked before Start")
		}
	}
}

// TestCloseClosesStreamOpenedDuringShutdown checks a push stream that connects
// while the loop is busy is closed even though the loop never adopts it.
func TestCloseClosesStreamOpenedDuringShutdown(t *testing.T) {
	srv := newFakeServer(t, game.Options{BoardSize: 3}, game.Capabilities{})
	pusher := &chanPusher{streams: make(chan *chanStream, 1)}
	gate := make(chan struct{})
	var blockOnce sync.Once
	c := newTestClient(t, Config{
		Transport: srv,
		Mode:      ModePush,
		Pusher:    pusher,
		OnChange: func(View) {
			blockOnce.Do(func() { <-gate })
		},
	})
	c.Start()

	// The next round's snapshot parks the loop inside OnChange.
	c.StartNextRound()
	waitFor(t, "next round requested", func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.nextReqs) == 1
	})

	stream := newChanStream()
	pusher.streams <- stream
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	<-c.done
	close(gate)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	select {
	case <-stream.closed:
	case <-time.After(time.Second):
		t.Error("stream opened during shutdown was left open")
	}
}
