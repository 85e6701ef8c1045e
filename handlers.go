package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"crossclues/internal/game"
	"crossclues/internal/types"
	"crossclues/internal/words"
)

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, types.ErrorResponse{Error: msg})
}

// gameStateHandler returns the full session, topping up the player's hand
// first. With a long-poll timeout set it holds the request until the session
// moves past the client's state_id.
func (app *App) gameStateHandler(c *gin.Context) {
	var req types.StateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, ErrorBadRequest)
		return
	}
	gh, err := app.getGame(req.GameID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	gh.update(func(g *game.Game) bool { return g.Draw(req.PlayerID) })
	gh.waitForChange(c.Request.Context(), req.StateID, app.LongPollTimeout)
	if c.Request.Context().Err() != nil {
		return
	}
	c.JSON(http.StatusOK, gh.snapshot(req.PlayerID))
}

// actionHandler wraps a move. Moves the game refuses still answer 200 with
// the unchanged session.
func (app *App) actionHandler(name string, move func(g *game.Game, playerID string, index int) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, ErrorBadRequest)
			return
		}
		gh, err := app.getGame(req.GameID)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err.Error())
			return
		}
		changed := gh.update(func(g *game.Game) bool { return move(g, req.PlayerID, req.Index) })
		if !changed {
			logInfo("[request_id=%v] Ignored %s of cell %d by %s in %s", requestID(c.Request.Context()), name, req.Index, req.PlayerID, req.GameID)
		}
		c.JSON(http.StatusOK, gh.snapshot(req.PlayerID))
	}
}

func (app *App) guessHandler() gin.HandlerFunc {
	return app.actionHandler("guess", func(g *game.Game, playerID string, index int) bool {
		return g.Reveal(playerID, index)
	})
}

func (app *App) discardHandler() gin.HandlerFunc {
	return app.actionHandler("discard", func(g *game.Game, playerID string, index int) bool {
		return g.Discard(playerID, index)
	})
}

// resolveWords picks the word list a round deals from. ok is false when the
// request should keep whatever list the session already uses.
func (app *App) resolveWords(req types.NextRoundRequest) (set string, list []string, ok bool, err error) {
	if len(req.Words) > 0 {
		list, err = words.Normalize(req.Words)
		return words.CustomSet, list, true, err
	}
	switch req.WordSet {
	case "", words.CustomSet:
		return "", nil, false, nil
	case words.DefaultSet:
		return words.DefaultSet, app.DefaultWords, true, nil
	}
	if l, found := words.Lookup(req.WordSet); found {
		return req.WordSet, l, true, nil
	}
	return "", nil, false, errors.New(ErrorUnknownWordSet)
}

// nextGameHandler creates a session, joins it, or replaces its round.
func (app *App) nextGameHandler(c *gin.Context) {
	var req types.NextRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, ErrorBadRequest)
		return
	}
	opts, err := game.Options{
		TimerDurationMS: req.TimerDurationMS,
		EnforceTimer:    req.EnforceTimer,
		HandSize:        req.HandSize,
		BoardSize:       req.BoardSize,
	}.Normalize()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	set, list, explicit, err := app.resolveWords(req)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	app.GamesMutex.Lock()
	gh, exists := app.Games[req.GameID]
	if !exists {
		if !explicit {
			if req.WordSet == words.CustomSet {
				app.GamesMutex.Unlock()
				abortWithError(c, http.StatusBadRequest, ErrorNoCustomWords)
				return
			}
			set, list = words.DefaultSet, app.DefaultWords
		}
		gh, err = app.newGameLocked(req.GameID, game.NewDeal(set, list), opts)
		app.GamesMutex.Unlock()
		if err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusOK, gh.snapshot(req.PlayerID))
		return
	}
	app.GamesMutex.Unlock()

	if req.CreateNew {
		err = gh.replace(func(g *game.Game) (*game.Game, error) {
			deal := g.NextDeal(opts.BoardSize)
			if explicit && (set == words.CustomSet || set != g.Deal.WordSet) {
				deal = game.NewDeal(set, list)
			}
			return g.NextRound(deal, opts)
		})
		if err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		logInfo("[request_id=%v] Started next round of %s for %s", requestID(c.Request.Context()), req.GameID, req.PlayerID)
	}
	c.JSON(http.StatusOK, gh.snapshot(req.PlayerID))
}

// statsHandler reports session and request counters.
func (app *App) statsHandler(c *gin.Context) {
	hourAgo := app.Now().Add(-time.Hour)

	app.GamesMutex.RLock()
	handles := lo.Values(app.Games)
	app.GamesMutex.RUnlock()

	var inProgress, createdWithinAnHour int
	for _, gh := range handles {
		gh.mu.Lock()
		if !gh.g.Won && (gh.g.Score > 0 || len(gh.g.Discards) > 0) {
			inProgress++
		}
		if gh.g.CreatedAt.After(hourAgo) {
			createdWithinAnHour++
		}
		gh.mu.Unlock()
	}
	c.JSON(http.StatusOK, statsResponse{
		GamesTotal:          len(handles),
		GamesInProgress:     inProgress,
		GamesCreatedOneHour: createdWithinAnHour,
		RequestsTotal:       app.RequestsTotal.Load(),
		RequestsInFlight:    app.RequestsInFlight.Load(),
	})
}

// healthzHandler returns a JSON health check with server stats.
func (app *App) healthzHandler(c *gin.Context) {
	uptime := time.Since(app.StartTime)
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"env":               map[bool]string{true: "production", false: "development"}[app.IsProduction],
		"words_loaded":      len(app.DefaultWords),
		"games":             app.gameCount(),
		"hand_and_discard":  app.Caps.HandAndDiscard,
		"timer_enforcement": app.Caps.TimerEnforcement,
		"uptime":            formatUptime(uptime),
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}
