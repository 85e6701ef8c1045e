package main

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"crossclues/internal/game"
)

type contextKey string

// App holds server configuration and every live session.
type App struct {
	IsProduction    bool
	StartTime       time.Time
	RateLimitRPS    int
	RateLimitBurst  int
	LongPollTimeout time.Duration // zero answers /game-state immediately
	CleanupInterval time.Duration
	Caps            game.Capabilities

	DefaultWords []string

	Games      map[string]*GameHandle
	GamesMutex sync.RWMutex

	LimiterMap   map[string]*rate.Limiter
	LimiterMutex sync.Mutex

	RequestsTotal    atomic.Int64
	RequestsInFlight atomic.Int64

	// Now is the clock every round is built with.
	Now func() time.Time
}

// statsResponse is the body of GET /stats.
type statsResponse struct {
	GamesTotal          int   `json:"games_total"`
	GamesInProgress     int   `json:"games_in_progress"`
	GamesCreatedOneHour int   `json:"games_created_1h"`
	RequestsTotal       int64 `json:"requests_total"`
	RequestsInFlight    int64 `json:"requests_in_flight"`
}
