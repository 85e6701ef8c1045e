// Command player joins a crossclues session from the terminal.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"

	"crossclues/internal/board"
	"crossclues/internal/prefs"
	"crossclues/internal/score"
	"crossclues/internal/syncclient"
)

// profileMaxAge drops preference files nobody has used for this long.
const profileMaxAge = 90 * 24 * time.Hour

type question struct {
	prompt string
	reply  chan bool
}

// terminal owns the screen and stdin. Everything it prints happens on run's
// goroutine.
type terminal struct {
	client   *syncclient.Client
	store    *prefs.Store
	profile  string
	playerID string

	mu    sync.Mutex
	prefs prefs.Preferences

	views    chan syncclient.View
	outcomes chan score.Outcome
	asks     chan question
	lines    chan string
}

func main() {
	_ = godotenv.Load()

	var (
		serverURL = flag.String("server", envOr("CROSSCLUES_SERVER", "http://localhost:8080"), "Session server base URL")
		gameID    = flag.String("game", "", "Session id to join; a new one is made up when empty")
		profile   = flag.String("profile", "default", "Preference profile name")
		mode      = flag.String("mode", "poll", "Sync mode: poll or push")
		boardSize = flag.Int("board", 0, "Board size for new rounds (3-5), remembered in the profile")
		pollDelay = flag.Duration("poll", syncclient.DefaultPollDelay, "Delay between polls")
		verbose   = flag.Bool("v", false, "Log sync activity to stderr")
	)
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	store := &prefs.Store{Dir: prefs.DefaultDir(), MaxAge: profileMaxAge}
	p, err := store.Load(*profile)
	if err != nil {
		pterm.Warning.Printfln("Could not read preferences: %v", err)
	}
	if p.PlayerID == "" {
		p.PlayerID = uuid.NewString()
		if err := store.Save(*profile, p); err != nil {
			pterm.Warning.Printfln("Could not save preferences: %v", err)
		}
	}
	if *boardSize != 0 {
		if p, err = store.SetBoardSize(*profile, *boardSize); err != nil {
			pterm.Error.Println(err)
			os.Exit(2)
		}
	}
	if *gameID == "" {
		*gameID = uuid.NewString()[:8]
	}

	syncMode := syncclient.ModePoll
	switch *mode {
	case "poll":
	case "push":
		syncMode = syncclient.ModePush
	default:
		pterm.Error.Printfln("Unknown mode %q, want poll or push", *mode)
		os.Exit(2)
	}

	t := &terminal{
		store:    store,
		profile:  *profile,
		playerID: p.PlayerID,
		prefs:    p,
		views:    make(chan syncclient.View, 1),
		outcomes: make(chan score.Outcome, 1),
		asks:     make(chan question),
		lines:    make(chan string),
	}
	client, err := syncclient.New(syncclient.Config{
		GameID:             *gameID,
		PlayerID:           p.PlayerID,
		Mode:               syncMode,
		PollDelay:          *pollDelay,
		Transport:          syncclient.NewHTTPTransport(*serverURL),
		Pusher:             syncclient.NewWebSocketPusher(*serverURL),
		Confirmer:          t,
		PreferredBoardSize: t.preferredBoardSize,
		OnChange:           t.onChange,
		OnRoundEnd:         t.onRoundEnd,
		Logger:             logger,
	})
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	t.client = client

	pterm.DefaultHeader.WithFullWidth().Println("crossclues")
	pterm.Info.Printfln("Session %s on %s (%s mode). Share the session id to play together.", *gameID, *serverURL, syncMode)
	pterm.Info.Println("Type ? for help.")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go t.readLines()
	client.Start()
	t.run(ctx)
	client.Close()
	pterm.Info.Println("Bye.")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (t *terminal) readLines() {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		t.lines <- sc.Text()
	}
	close(t.lines)
}

func (t *terminal) preferences() prefs.Preferences {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prefs
}

func (t *terminal) setPreferences(p prefs.Preferences) {
	t.mu.Lock()
	t.prefs = p
	t.mu.Unlock()
}

func (t *terminal) preferredBoardSize() int {
	return t.preferences().BoardSize
}

// onChange keeps only the newest view for the screen.
func (t *terminal) onChange(v syncclient.View) {
	select {
	case <-t.views:
	default:
	}
	select {
	case t.views <- v:
	default:
	}
}

func (t *terminal) onRoundEnd(out score.Outcome, _ syncclient.View) {
	select {
	case t.outcomes <- out:
	default:
	}
}

// Confirm hands the question to run, which answers it with the next input line.
func (t *terminal) Confirm(ctx context.Context, prompt string) bool {
	q := question{prompt: prompt, reply: make(chan bool, 1)}
	select {
	case t.asks <- q:
	case <-ctx.Done():
		return false
	}
	select {
	case ok := <-q.reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

func (t *terminal) run(ctx context.Context) {
	var pending *question
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-t.views:
			render(v, t.playerID, t.preferences(), time.Now())
		case out := <-t.outcomes:
			pterm.DefaultBox.WithTitle("Round over").Println(fmt.Sprintf("Score %d", out.Score))
		case q := <-t.asks:
			pending = &q
			pterm.Info.Println(q.prompt + " [y/N]")
		case line, ok := <-t.lines:
			if !ok {
				return
			}
			if pending != nil {
				pending.reply <- isYes(line)
				pending = nil
				continue
			}
			if !t.exec(line) {
				return
			}
		}
	}
}

// exec runs one command and reports whether to keep going.
func (t *terminal) exec(line string) bool {
	cmd, err := parseCommand(line)
	if err != nil {
		pterm.Warning.Println(err)
		return true
	}
	switch cmd.act {
	case actGuess, actDiscard:
		s := t.client.View().Session
		if s == nil {
			pterm.Warning.Println("No board yet.")
			return true
		}
		index, err := board.ParseLabel(cmd.label, s.BoardSize)
		if err != nil {
			pterm.Warning.Println(err)
			return true
		}
		sent := false
		if cmd.act == actGuess {
			sent = t.client.Reveal(index)
		} else {
			sent = t.client.Discard(index)
		}
		if !sent {
			pterm.Warning.Printfln("%s cannot be played right now.", board.IndexLabel(index, s.BoardSize))
		}
	case actNext:
		var opts []syncclient.RoundOption
		if cmd.size != 0 {
			if !board.ValidSize(cmd.size) {
				pterm.Warning.Printfln("Board size must be between %d and %d.", board.MinSize, board.MaxSize)
				return true
			}
			opts = append(opts, syncclient.WithBoardSize(cmd.size))
		}
		t.client.StartNextRound(opts...)
	case actSize:
		p, err := t.store.SetBoardSize(t.profile, cmd.size)
		if err != nil {
			pterm.Warning.Println(err)
			return true
		}
		t.setPreferences(p)
		pterm.Success.Printfln("New rounds will use a %dx%d board.", cmd.size, cmd.size)
	case actToggle:
		p, err := t.store.Toggle(t.profile, cmd.toggle)
		if err != nil {
			pterm.Warning.Println(err)
			return true
		}
		t.setPreferences(p)
		render(t.client.View(), t.playerID, p, time.Now())
	case actHelp:
		pterm.DefaultBox.WithTitle("Commands").Println(helpText)
	case actQuit:
		return false
	}
	return true
}
