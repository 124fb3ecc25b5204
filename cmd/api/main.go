package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"

	"dev/bravebird/page-verifier/pkg/api"
	"dev/bravebird/page-verifier/pkg/database"
	"dev/bravebird/page-verifier/pkg/verifier"
)

func main() {
	log.Println("Starting Page Verification API Server")

	// Get configuration from environment
	port := getEnvOrDefault("PORT", "8080")
	mysqlDSN := getEnvOrDefault("MYSQL_DSN", "verifier:verifier@tcp(localhost:3306)/verifier?parseTime=true")
	temporalHost := getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	baseURL := getEnvOrDefault("VERIFY_BASE_URL", verifier.DefaultBaseURL)
	screenshotDir := getEnvOrDefault("SCREENSHOT_DIR", "/tmp/screenshots")

	// Initialize database
	db, err := database.New(mysqlDSN)
	if err != nil {
		log.Printf("Warning: Failed to connect to database: %v", err)
		log.Println("Running without database persistence")
		db = nil
	}
	if db != nil {
		defer db.Close()
		if err := db.Migrate(context.Background()); err != nil {
			log.Printf("Warning: %v", err)
		}
	}

	// Initialize Temporal client
	temporalClient, err := client.Dial(client.Options{
		HostPort: temporalHost,
	})
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer temporalClient.Close()

	handlers := api.NewHandlers(db, temporalClient, baseURL, screenshotDir)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handlers.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
