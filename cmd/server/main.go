/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the attendance engine server. Handles
  configuration, dependency injection, admin seeding and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store (schema migrates on open)
  3. Seed the admin account if the users table is empty of it
  4. Create auth service and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (env var fallback in parentheses):
  -port           HTTP server port (PORT, default 8080)
  -db             SQLite database path (DB_PATH, default attendance.db)
                  Use ":memory:" for an in-memory database
  -jwt-secret     Session signing secret (JWT_SECRET, required)
  -admin-user     Seeded admin username (ADMIN_USER, default admin)
  -admin-pass     Seeded admin password (ADMIN_PASS)
  -session-ttl    Session token lifetime (SESSION_TTL, default 12h)
  -log-level      logrus level (LOG_LEVEL, default info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/attendance.db" -jwt-secret="..." -admin-pass="..."

  # Run with in-memory database (everything lost on exit)
  ./server -db=":memory:" -jwt-secret="dev" -admin-pass="dev"

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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/rollcall/attendance/api"
	"github.com/rollcall/attendance/auth"
	"github.com/rollcall/attendance/store/sqlite"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	port := flag.Int("port", intEnvOr("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envOr("DB_PATH", "attendance.db"), "SQLite database path")
	jwtSecret := flag.String("jwt-secret", os.Getenv("JWT_SECRET"), "session signing secret")
	adminUser := flag.String("admin-user", envOr("ADMIN_USER", "admin"), "seeded admin username")
	adminPass := flag.String("admin-pass", os.Getenv("ADMIN_PASS"), "seeded admin password")
	sessionTTL := flag.Duration("session-ttl", durationEnvOr("SESSION_TTL", 12*time.Hour), "session token lifetime")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.Warnf("Unknown log level %q, using info", *logLevel)
	}

	if *jwtSecret == "" {
		log.Fatal("A JWT secret is required (-jwt-secret or JWT_SECRET)")
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	store.SetLogger(log)

	if *adminPass != "" {
		hash, err := auth.HashPassword(*adminPass)
		if err != nil {
			log.Fatalf("Failed to hash admin password: %v", err)
		}
		if err := store.SeedAdmin(context.Background(), *adminUser, hash); err != nil {
			log.Fatalf("Failed to seed admin account: %v", err)
		}
		log.WithField("username", *adminUser).Info("Admin account ensured")
	}

	authSvc := auth.NewService(store, []byte(*jwtSecret), *sessionTTL)
	handler := api.NewHandler(store, authSvc, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": *port, "db": *dbPath}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped")
}

func intEnvOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func durationEnvOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
