package syncclient

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"crossclues/internal/types"
)

const pongWait = 120 * time.Second

// WebSocketPusher dials the server's push endpoint.
type WebSocketPusher struct {
	BaseURL string
	Dialer  *websocket.Dialer
}

// NewWebSocketPusher derives the ws:// or wss:// endpoint from an http base URL.
func NewWebSocketPusher(baseURL string) *WebSocketPusher {
	return &WebSocketPusher{BaseURL: strings.TrimRight(baseURL, "/"), Dialer: websocket.DefaultDialer}
}

func (p *WebSocketPusher) endpoint(gameID, playerID string) (string, error) {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + PathWebSocket + "/" + url.PathEscape(gameID) + "/" + url.PathEscape(playerID)
	return u.String(), nil
}

// Connect opens the push channel. The server sends the current snapshot right
// away and then one per change.
func (p *WebSocketPusher) Connect(ctx context.Context, gameID, playerID string) (Stream, error) {
	endpoint, err := p.endpoint(gameID, playerID)
	if err != nil {
		return nil, err
	}
	dialer := p.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (s *wsStream) Recv() (*types.Session, error) {
	var snap types.Session
	if err := s.conn.ReadJSON(&snap); err != nil {
		return nil, err
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	return &snap, nil
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leaving"),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
