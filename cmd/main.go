/*
Package main is the entry point for the eduportal shell gateway.

It is responsible for loading configuration, initializing the global logging system, opening the
session store, wiring the backend and broker clients, serving the HTTP API and gracefully handling
operating system interrupt signals (SIGINT, SIGTERM) to ensure a smooth shutdown.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eduportal/internal/app/auth"
	"eduportal/internal/app/authz"
	"eduportal/internal/app/session"
	"eduportal/internal/app/stompws"
	"eduportal/internal/configs"
	"eduportal/internal/handler"
	"eduportal/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment(), cfg.LogLevel)
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("backend_url", cfg.BackendURL).
		Str("broker_url", cfg.BrokerURL).
		Str("session_file", cfg.SessionFile).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Remembered sessions survive restarts, the rest live as long as the process.
	persistent, err := session.NewFileKV(cfg.SessionFile)
	if err != nil {
		logx.Fatal(err, "Failed to open session file", "path", cfg.SessionFile)
	}
	store := session.NewStore(persistent, session.NewMemoryKV())

	table := authz.DefaultTable()
	if err := table.Validate(); err != nil {
		logx.Warn("Route table has routes open to any principal", "detail", err.Error())
	}
	resolver := authz.NewResolver(store, nil, table)

	backend, err := auth.NewClient(cfg.BackendURL, cfg.BackendLoginPath, cfg.HTTPTimeout)
	if err != nil {
		logx.Fatal(err, "Failed to configure backend client")
	}

	broker, err := stompws.New(stompws.Config{URL: cfg.BrokerURL, HeartBeat: cfg.BrokerHeartBeat})
	if err != nil {
		logx.Fatal(err, "Failed to configure broker client")
	}

	deps := &handler.AppDeps{
		Config:   cfg,
		Resolver: resolver,
		Auth:     auth.NewService(backend, store),
		Broker:   broker,
	}

	// WriteTimeout stays zero: presence relays hold their connection open.
	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     handler.Router(ctx, deps),
		BaseContext: func(net.Listener) context.Context { return ctx },
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("eduportal gateway starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	logx.Info("Server gracefully stopped.")
}
