/*
main.go - HTTP server entry point

PURPOSE:
  Starts the sales-tax engine's HTTP surface. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: salestax.db)
              Use ":memory:" for an in-memory database
  -params     Optional Parameters.json path (filing frequency, ZIP
              fallback switch, coverage threshold)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./server -db="./data/salestax.db"
  ./server -db=":memory:" -params=config/Parameters.json

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/salestax-engine/api"
	"github.com/warp/salestax-engine/factory"
	"github.com/warp/salestax-engine/filing"
	"github.com/warp/salestax-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "salestax.db", "SQLite database path")
	paramsPath := flag.String("params", "", "Parameters.json path (optional)")
	flag.Parse()

	// Run policy
	config := filing.Config{}
	if *paramsPath != "" {
		params, err := factory.LoadParameters(*paramsPath)
		if err != nil {
			log.Fatalf("Failed to load parameters: %v", err)
		}
		config = params.RunConfig()
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Router
	handler := api.NewHandler(store, config)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	// Start server in background
	go func() {
		log.Printf("Sales-tax engine listening on :%d (db: %s)", *port, *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
