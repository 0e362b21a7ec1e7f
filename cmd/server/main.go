package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hookscope/hookscope/internal/auth"
	"github.com/hookscope/hookscope/internal/capture"
	"github.com/hookscope/hookscope/internal/core"
	"github.com/hookscope/hookscope/internal/live"
	"github.com/hookscope/hookscope/internal/notify"
	"github.com/hookscope/hookscope/internal/storage"
)

func main() {
	// Load configuration
	cfg := core.LoadConfig()

	// Open storage
	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()
	log.Printf("Storage ready in %s", cfg.DataDir)

	// Notification broker and capture pipeline
	broker := notify.NewBroker()
	captureSvc := capture.NewService(store, broker)
	liveHandler := live.NewHandler(store, broker)

	// Login flow (nil when no OAuth provider is configured)
	oauth := auth.NewOAuth(cfg.OAuth, cfg.JWTSecret, store)
	if oauth != nil {
		log.Println("OAuth login flow enabled")
	} else if cfg.JWTSecret == "" {
		log.Println("No JWT secret configured; running in anonymous mode")
	}

	// Create and configure server
	server := core.NewServer(cfg, store, captureSvc, liveHandler, oauth)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on %s", cfg.ListenAddr)
		log.Printf("API available at %s/api", cfg.BaseURL)
		log.Printf("Live delivery WebSocket at %s/ws/endpoints", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited gracefully")
}
