package main

import "time"

// Route constants
const (
	RouteGameState = "/game-state"
	RouteGuess     = "/guess"
	RouteDiscard   = "/discard"
	RouteNextGame  = "/next-game"
	RouteWebSocket = "/websocket/:gameID/:playerID"
	RouteStats     = "/stats"
	RouteHealthz   = "/healthz"
)

// Session lifetime constants
const (
	InProgressTTL          = 3 * time.Hour  // unfinished rounds started this long ago are dropped
	SessionMaxAge          = 72 * time.Hour // any round started this long ago is dropped
	DefaultCleanupInterval = 10 * time.Minute
)

// WebSocket timing constants
const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 120 * time.Second
	wsPingPeriod = 30 * time.Second
)

// Error message constants
const (
	ErrorBadRequest     = "Error decoding request body."
	ErrorUnknownWordSet = "Unknown word set."
	ErrorNoCustomWords  = "Custom word set needs a word list."
	ErrorTooManyRequest = "Too many requests. Please slow down."
)

// Context key constants
const (
	requestIDKey contextKey = "request_id"
)
