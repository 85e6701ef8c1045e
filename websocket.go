package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"crossclues/internal/game"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocketHandler pushes a full snapshot to the player whenever the session
// changes, starting with the current one. The connection is closed when the
// session is dropped so the player reconnects to whatever replaces it.
func (app *App) websocketHandler(c *gin.Context) {
	gameID, playerID := c.Param("gameID"), c.Param("playerID")
	gh, err := app.getGame(gameID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logWarn("WebSocket upgrade for %s failed: %v", gameID, err)
		return
	}
	logInfo("WebSocket opened for %s in %s", playerID, gameID)

	done := make(chan struct{})
	go wsReadPump(conn, done)
	wsWritePump(conn, gh, playerID, done)
	logInfo("WebSocket closed for %s in %s", playerID, gameID)
}

// wsReadPump discards client messages and keeps the read deadline fresh. It
// closes done when the connection goes away.
func wsReadPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func wsWritePump(conn *websocket.Conn, gh *GameHandle, playerID string, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		gh.update(func(g *game.Game) bool { return g.Draw(playerID) })
		snap := gh.snapshot(playerID)
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(snap); err != nil {
			return
		}

		changed := gh.changedSince(snap.StateID)
	wait:
		for {
			select {
			case <-done:
				return
			case <-gh.removed:
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session removed"),
					time.Now().Add(wsWriteWait))
				return
			case <-changed:
				break wait
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
