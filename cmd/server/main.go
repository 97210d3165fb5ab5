package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"messenger-lab/auth"
	"messenger-lab/infrastructure/rest"
	"messenger-lab/infrastructure/ws"
	"messenger-lab/internal"
	"messenger-lab/moderation"
	"messenger-lab/projection"
	"messenger-lab/repositories"
	"messenger-lab/runtime"
	"messenger-lab/runtime/workers"
	"messenger-lab/search"
	"messenger-lab/services"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer executes before exit.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB for messages, Bluge for search)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := search.NewIndex(logger, config.BlugeFilepath)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open search index: %w", err)
	}
	defer func() {
		logger.Info("Closing search index...")
		_ = index.Close()
	}()

	// 3. Moderation
	censored, err := moderation.LoadCensoredWords()
	if err != nil {
		return exitRuntime, err
	}
	logger.Info(fmt.Sprintf("%d censored words loaded [%d languages]",
		len(censored.Words), len(censored.Languages)))

	moderator, err := moderation.NewModerator(logger, censored.Words, charReplacement)
	if err != nil {
		return exitRuntime, err
	}

	// 4. Delivery core
	store := repositories.NewMessageRepository(db, logger)
	directory := repositories.NewChatDirectory()
	registry := runtime.NewRegistry(config.MaxSessionsPerUser)
	presence := runtime.NewPresenceTracker(logger, registry, config.DispatchTimeout)
	registry.AddListener(presence)

	router := runtime.NewRouter(logger, registry, store, directory,
		services.NewLogNotifier(logger), moderator,
		config.BufferSize, config.DispatchTimeout, config.PreviewLength)

	// Permanent sinks observe every accepted message exactly once: the
	// search index and the in-process timeline projection.
	timeline := projection.NewTimeline()
	router.Add(index, timeline)

	supervisor := workers.NewSupervisor(logger)
	for i := 0; i < config.NumberOfWorkers; i++ {
		supervisor.Add(router)
	}
	supervisor.Add(workers.NewTelemetryWorker(logger, config.TelemetryInterval))

	chatService := services.NewChatService(router, registry, presence, store, index)
	tokens := auth.NewTokenService(config.TokenSecret)

	// 5. Transports
	muxRouter := mux.NewRouter()
	rest.NewHandler(logger, chatService, tokens, directory, timeline).Register(muxRouter)
	wsServer := ws.NewServer(logger, chatService, tokens,
		config.ConnectionBufferSize, config.MaxContentLength, config.DispatchTimeout)
	muxRouter.HandleFunc("/ws", wsServer.HandleConnection)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: muxRouter,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go supervisor.Run(ctx)

	// 6. Wait for shutdown signal or fatal transport error.
	select {
	case <-ctx.Done():
		logger.Info("Shutdown requested")
	case err := <-serverErr:
		return exitRuntime, fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	supervisor.Stop()
	return exitOK, nil
}
