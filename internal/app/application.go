package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"nestchat/internal/api"
	"nestchat/internal/auth"
	"nestchat/internal/chat"
	"nestchat/internal/config"
	"nestchat/internal/hub"
	"nestchat/internal/presence"
	"nestchat/internal/router"
	"nestchat/internal/store"
	"nestchat/internal/websocket"
	"nestchat/pkg/database"
)

// Application wires all components. Initialization follows dependency
// order: Store → Chat → Registry → Hub → Router → Handlers → HTTP.
type Application struct {
	config      *config.Config
	store       *store.Manager
	chat        *chat.Service
	registry    *websocket.Registry
	hub         *hub.Hub
	eventRouter *router.Router
	httpServer  *http.Server
}

// NewApplication builds the full component graph from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := database.DefaultConfig(cfg.Database.Path)
	dbConfig.ConnMaxLifetime = cfg.Database.Timeout
	dbConfig.ConnMaxIdleTime = cfg.Database.Timeout / 3

	storeManager, err := store.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	chatService := chat.NewService(storeManager)
	tracker := presence.NewTracker(storeManager)
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	registry := websocket.NewRegistry()
	broadcastHub := hub.NewHub(registry)
	eventRouter := router.NewRouter(chatService, broadcastHub, registry)
	wsOpts := websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	}
	wsHandler := websocket.NewHandler(registry, verifier, storeManager, tracker, broadcastHub, eventRouter, wsOpts)

	apiServer := api.NewServer(chatService, verifier, storeManager, registry)

	mux := http.NewServeMux()
	mux.Handle("/", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		store:       storeManager,
		chat:        chatService,
		registry:    registry,
		hub:         broadcastHub,
		eventRouter: eventRouter,
		httpServer:  httpServer,
	}, nil
}

// Start runs the hub, then the HTTP server.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting nestchat on %s", app.httpServer.Addr)

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}
	app.eventRouter.StartLimiterCleanup(ctx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("nestchat started")
		return nil
	case <-ctx.Done():
		_ = app.hub.Stop()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse order: HTTP → Hub → Store.
// Closing connections marks their users offline on the way out.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down nestchat")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	for _, conn := range app.registry.AllConnections() {
		_ = conn.Close()
	}
	if err := app.hub.Stop(); err != nil {
		log.Printf("Hub shutdown error: %v", err)
	}
	if err := app.store.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	log.Printf("nestchat shutdown complete")
	return nil
}

// Addr returns the HTTP listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}

// Handler exposes the root HTTP handler for tests.
func (app *Application) Handler() http.Handler {
	return app.httpServer.Handler
}

// Hub exposes the broadcast hub so embedders can run it without the
// built-in HTTP listener.
func (app *Application) Hub() *hub.Hub {
	return app.hub
}

// Store exposes the durable layer for seeding and tests.
func (app *Application) Store() *store.Manager {
	return app.store
}
