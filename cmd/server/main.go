/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tip ledger engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire ledger and engines (groups, ownership, tip-outs, adjustments)
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port            HTTP server port (default: 8080)
  -db              SQLite database path (default: tips.db)
                   Use ":memory:" for in-memory database
  -memory          Use the in-memory store instead of SQLite; all state
                   is lost on exit (demos and development)
  -ownership-mode  Tip attribution mode: item_based or
                   primary_server_owns_all (default: item_based)
  -expire-interval How often the idle-group scheduler checks (default: 15m)
  -expire-after    Inactivity window before a group closes (default: 12h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/tips.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run without SQLite at all (pure in-memory store)
  ./server -memory

  # Run with table-takeover attribution
  ./server -ownership-mode=primary_server_owns_all

ENVIRONMENT:
  No environment variables currently. All config via flags.
  Future: DATABASE_URL, PORT, LOG_LEVEL

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
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

	"github.com/GetwithitMan/gwi-pos-sub001/api"
	"github.com/GetwithitMan/gwi-pos-sub001/store/sqlite"
	"github.com/GetwithitMan/gwi-pos-sub001/tips"
	memstore "github.com/GetwithitMan/gwi-pos-sub001/tips/store"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "tips.db", "SQLite database path")
	useMemory := flag.Bool("memory", false, "use the in-memory store instead of SQLite (state is lost on exit)")
	ownershipMode := flag.String("ownership-mode", string(tips.ModeItemBased),
		"tip attribution mode: item_based or primary_server_owns_all")
	expireInterval := flag.Duration("expire-interval", 15*time.Minute, "idle group check interval")
	expireAfter := flag.Duration("expire-after", 12*time.Hour, "inactivity window before a group is closed")
	flag.Parse()

	mode := tips.OwnershipMode(*ownershipMode)
	if mode != tips.ModeItemBased && mode != tips.ModePrimaryServerOwnsAll {
		log.Fatalf("Invalid ownership mode: %s", *ownershipMode)
	}

	// Initialize store
	var store tips.TxStore
	if *useMemory {
		store = memstore.NewMemory()
	} else {
		db, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		store = db
	}

	// Wire the engines. FactBook feeds hours/role/shift/sales facts into
	// split resolution and tip-outs.
	facts := tips.NewFactBook()
	ledger := tips.NewLedger(store)
	groups := tips.NewGroupEngine(store, ledger, facts, facts)
	ownership := tips.NewOwnershipResolver(store, ledger, groups, mode)
	tipOuts := tips.NewTipOutEngine(store, ledger, facts, facts, facts)
	adjustments := tips.NewAdjustmentEngine(store, groups)
	binder := tips.NewBinder(store, groups, log.Default())

	handler := api.NewHandler(store, ledger, groups, ownership, tipOuts, adjustments, binder, facts)
	router := api.NewRouter(handler)

	// Background expiry of abandoned groups
	scheduler := api.NewGroupExpiryScheduler(groups)
	scheduler.CheckInterval = *expireInterval
	scheduler.IdleAfter = *expireAfter
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
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
