/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server. Handles configuration,
  dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Wire the leave service over the store
  4. Configure HTTP router and background scheduler
  5. Start server with graceful shutdown

CONFIGURATION:
  Flags override environment variables; .env fills the environment.
  -port / PORT                    HTTP server port (default: 8080)
  -db / DATABASE_PATH             SQLite path (default: leave.db)
  -sweep-interval                 Scheduler interval (default: 1h)
  -escalation-threshold           Stage age before escalation (default: 48h)
  -log-level / LOG_LEVEL          logrus level (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop the scheduler, stop accepting connections,
  wait for active requests (30s timeout), close the database.

EXAMPLES:
  ./server -db="./data/leave.db"
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background sweeps
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
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	// .env is optional; flags beat environment.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "leave.db"), "SQLite database path")
	sweepInterval := flag.Duration("sweep-interval", time.Hour, "background sweep interval")
	escalationThreshold := flag.Duration("escalation-threshold", 48*time.Hour, "stage age before a pending request escalates")
	logLevel := flag.String("log-level", envStr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	origins := flag.String("cors-origins", envStr("CORS_ORIGINS", ""), "comma-separated allowed CORS origins")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	notifier := leave.NewLogNotifier(log)
	svc := leave.NewService(store, store, notifier, log)

	handler := api.NewHandler(svc, log)
	handler.SaveEmployee = func(r *http.Request, e leave.Employee) error {
		return store.SaveEmployee(r.Context(), e)
	}

	var allowedOrigins []string
	if *origins != "" {
		allowedOrigins = strings.Split(*origins, ",")
	}
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: allowedOrigins,
		Verbose:        log.GetLevel() >= logrus.DebugLevel,
	})

	scheduler := api.NewScheduler(svc, log)
	scheduler.Interval = *sweepInterval
	scheduler.EscalationThreshold = *escalationThreshold
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("forced shutdown")
	}
	log.Info("server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
