package main

import (
	"context"
	"sync"
	"time"

	"crossclues/internal/game"
	"crossclues/internal/types"
	"crossclues/internal/words"
)

// GameHandle guards one session and tells waiters when it changes.
type GameHandle struct {
	mu      sync.Mutex
	g       *game.Game
	changed chan struct{} // closed and replaced on every change
	removed chan struct{} // closed once the registry drops the session
}

func newHandle(g *game.Game) *GameHandle {
	return &GameHandle{g: g, changed: make(chan struct{}), removed: make(chan struct{})}
}

// remove tells subscribers the handle is gone. Callers hold app.GamesMutex and
// have just deleted the handle from the registry.
func (gh *GameHandle) remove() {
	close(gh.removed)
}

// notifyLocked wakes every waiter. Callers hold gh.mu.
func (gh *GameHandle) notifyLocked() {
	close(gh.changed)
	gh.changed = make(chan struct{})
}

// update applies fn and notifies waiters when fn reports a change.
func (gh *GameHandle) update(fn func(*game.Game) bool) bool {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	if !fn(gh.g) {
		return false
	}
	gh.notifyLocked()
	return true
}

// replace swaps in the next round.
func (gh *GameHandle) replace(fn func(*game.Game) (*game.Game, error)) error {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	next, err := fn(gh.g)
	if err != nil {
		return err
	}
	gh.g = next
	gh.notifyLocked()
	return nil
}

// snapshot returns the session as playerID sees it.
func (gh *GameHandle) snapshot(playerID string) types.Session {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	return gh.g.Snapshot(playerID)
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// changedSince returns a channel that is closed once the session no longer
// matches stateID. It is already closed when stateID is stale or empty.
func (gh *GameHandle) changedSince(stateID string) <-chan struct{} {
	if stateID == "" {
		return closedCh
	}
	gh.mu.Lock()
	defer gh.mu.Unlock()
	if gh.g.StateID() != stateID {
		return closedCh
	}
	return gh.changed
}

// waitForChange blocks until the session moves past stateID or is removed,
// the timeout passes or ctx ends. A zero timeout returns at once.
func (gh *GameHandle) waitForChange(ctx context.Context, stateID string, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-gh.changedSince(stateID):
	case <-gh.removed:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// newGameLocked builds a default round for id. Callers hold app.GamesMutex.
func (app *App) newGameLocked(id string, deal game.Deal, opts game.Options) (*GameHandle, error) {
	g, err := game.New(id, deal, opts, app.Caps, app.Now)
	if err != nil {
		return nil, err
	}
	gh := newHandle(g)
	app.Games[id] = gh
	logInfo("Created session %s (board %d, words %s)", id, g.Options.BoardSize, deal.WordSet)
	return gh, nil
}

// lookupGame returns the handle for id without creating one.
func (app *App) lookupGame(id string) (*GameHandle, bool) {
	app.GamesMutex.RLock()
	defer app.GamesMutex.RUnlock()
	gh, ok := app.Games[id]
	return gh, ok
}

// getGame returns the handle for id, creating a default session when none
// exists so that a shared link is enough to join.
func (app *App) getGame(id string) (*GameHandle, error) {
	if gh, ok := app.lookupGame(id); ok {
		return gh, nil
	}
	app.GamesMutex.Lock()
	defer app.GamesMutex.Unlock()
	if gh, ok := app.Games[id]; ok {
		return gh, nil
	}
	return app.newGameLocked(id, game.NewDeal(words.DefaultSet, app.DefaultWords), game.Options{})
}

// cleanupOldGames drops unfinished rounds started more than InProgressTTL ago
// and every round started more than SessionMaxAge ago.
func (app *App) cleanupOldGames() int {
	now := app.Now()
	app.GamesMutex.Lock()
	defer app.GamesMutex.Unlock()
	removed := 0
	for id, gh := range app.Games {
		gh.mu.Lock()
		started, won := gh.g.RoundStartedAt, gh.g.Won
		gh.mu.Unlock()
		switch {
		case !won && now.Sub(started) > InProgressTTL:
			logInfo("Removed abandoned session %s", id)
		case now.Sub(started) > SessionMaxAge:
			logInfo("Removed expired session %s", id)
		default:
			continue
		}
		delete(app.Games, id)
		gh.remove()
		removed++
	}
	return removed
}

// runCleanup sweeps old sessions every CleanupInterval until ctx ends.
func (app *App) runCleanup(ctx context.Context) {
	interval := app.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := app.cleanupOldGames(); n > 0 {
				logInfo("Session cleanup removed %d sessions, %d left", n, app.gameCount())
			}
		}
	}
}

func (app *App) gameCount() int {
	app.GamesMutex.RLock()
	defer app.GamesMutex.RUnlock()
	return len(app.Games)
}
