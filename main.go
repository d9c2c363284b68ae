package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/replay/api"
	"github.com/xiaot623/replay/config"
	"github.com/xiaot623/replay/internal/broadcast"
	"github.com/xiaot623/replay/internal/replay"
	"github.com/xiaot623/replay/policy"
	"github.com/xiaot623/replay/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting replay service...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Idle timeout: %s, cleanup interval: %s", cfg.IdleTimeout, cfg.CleanupInterval)

	// Initialize session store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize share policy engine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize broadcaster and replay registry
	bc := broadcast.New(cfg.SubscriberBuffer)
	registry := replay.NewRegistry(db, bc, replay.RegistryOptions{
		IdleTimeout:     cfg.IdleTimeout,
		CleanupInterval: cfg.CleanupInterval,
		MinDwell:        cfg.MinDwell,
		MaxDwell:        cfg.MaxDwell,
	})

	// Idle session cleanup
	go registry.Run(ctx)

	// Initialize handler
	h := api.NewHandler(registry, bc, policyEngine, cfg)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Register routes
	h.RegisterRoutes(e)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Replay API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down replay service...")

	// Stop the cleanup loop and drain live replay sessions
	cancel()
	registry.Shutdown()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Replay service stopped")
}
