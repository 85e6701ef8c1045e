package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ginGzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"
	"golang.org/x/time/rate"

	"crossclues/internal/game"
	"crossclues/internal/words"
)

func main() {
	_ = godotenv.Load()

	isProduction := os.Getenv("GIN_MODE") == "release" || os.Getenv("ENV") == "production"
	setupLogging(isProduction)
	logInfo("Starting crossclues in %s mode", map[bool]string{true: "production", false: "development"}[isProduction])

	app := newApp(isProduction)
	logInfo("Loaded %d default words", len(app.DefaultWords))
	logInfo("Capabilities: hand_and_discard=%t timer_enforcement=%t, long poll %v",
		app.Caps.HandAndDiscard, app.Caps.TimerEnforcement, app.LongPollTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go app.runCleanup(ctx)

	app.startServer(ctx, app.setupRouter())
}

// newApp reads configuration from the environment.
func newApp(isProduction bool) *App {
	return &App{
		IsProduction:    isProduction,
		StartTime:       time.Now(),
		RateLimitRPS:    getEnvInt("RATE_LIMIT_RPS", 5),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 10),
		LongPollTimeout: getEnvDuration("LONG_POLL_TIMEOUT", 0),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", DefaultCleanupInterval),
		Caps: game.Capabilities{
			HandAndDiscard:   getEnvBool("HAND_AND_DISCARD", true),
			TimerEnforcement: getEnvBool("TIMER_ENFORCEMENT", true),
		},
		DefaultWords: words.Default(),
		Games:        make(map[string]*GameHandle),
		LimiterMap:   make(map[string]*rate.Limiter),
		Now:          time.Now,
	}
}

// setupRouter wires middleware and routes.
func (app *App) setupRouter() *gin.Engine {
	if app.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestIDMiddleware(), app.requestStatsMiddleware())
	if !app.IsProduction {
		router.Use(gin.Logger())
	}

	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression,
		ginGzip.WithExcludedPaths([]string{"/websocket/"})))

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logWarn("Failed to set trusted proxies: %v", err)
	}

	router.Use(cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	}))

	router.POST(RouteGameState, app.gameStateHandler)
	router.POST(RouteGuess, app.rateLimitMiddleware(), app.guessHandler())
	router.POST(RouteDiscard, app.rateLimitMiddleware(), app.discardHandler())
	router.POST(RouteNextGame, app.rateLimitMiddleware(), app.nextGameHandler)
	router.GET(RouteWebSocket, app.websocketHandler)
	router.GET(RouteStats, app.statsHandler)
	router.GET(RouteHealthz, app.healthzHandler)
	return router
}

func (app *App) startServer(ctx context.Context, router *gin.Engine) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	writeTimeout := 30 * time.Second
	if app.LongPollTimeout > 0 {
		writeTimeout += app.LongPollTimeout
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		<-ctx.Done()
		logInfo("Shutdown signal received, shutting down server gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logWarn("HTTP server Shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	logInfo("Server starting on http://localhost:%s", port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logFatal("Server failed to start: %v", err)
	}
	<-idleConnsClosed
	logInfo("Server shutdown complete")
}
