package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crossclues/internal/types"
)

// Transport carries request/response calls to the session server. Every call
// returns the full current snapshot.
type Transport interface {
	GetState(ctx context.Context, gameID, stateID, playerID string) (*types.Session, error)
	Reveal(ctx context.Context, gameID string, index int, playerID string) (*types.Session, error)
	Discard(ctx context.Context, gameID string, index int, playerID string) (*types.Session, error)
	StartNextRound(ctx context.Context, req types.NextRoundRequest) (*types.Session, error)
}

// Stream delivers one snapshot per server-side change.
type Stream interface {
	Recv() (*types.Session, error)
	Close() error
}

// Pusher opens a push channel for one participant.
type Pusher interface {
	Connect(ctx context.Context, gameID, playerID string) (Stream, error)
}

// Route paths served by the session server.
const (
	PathGameState = "/game-state"
	PathGuess     = "/guess"
	PathDiscard   = "/discard"
	PathNextGame  = "/next-game"
	PathWebSocket = "/websocket"
)

// HTTPTransport speaks JSON over HTTP to the session server.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPTransport returns a transport for the server at baseURL.
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *HTTPTransport) GetState(ctx context.Context, gameID, stateID, playerID string) (*types.Session, error) {
	return t.post(ctx, PathGameState, types.StateRequest{GameID: gameID, StateID: stateID, PlayerID: playerID})
}

func (t *HTTPTransport) Reveal(ctx context.Context, gameID string, index int, playerID string) (*types.Session, error) {
	return t.post(ctx, PathGuess, types.ActionRequest{GameID: gameID, Index: index, PlayerID: playerID})
}

func (t *HTTPTransport) Discard(ctx context.Context, gameID string, index int, playerID string) (*types.Session, error) {
	return t.post(ctx, PathDiscard, types.ActionRequest{GameID: gameID, Index: index, PlayerID: playerID})
}

func (t *HTTPTransport) StartNextRound(ctx context.Context, req types.NextRoundRequest) (*types.Session, error) {
	return t.post(ctx, PathNextGame, req)
}

func (t *HTTPTransport) post(ctx context.Context, path string, body any) (*types.Session, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e types.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s: %s (%d)", path, e.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}

	var s types.Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("%s: decode snapshot: %w", path, err)
	}
	return &s, nil
}
