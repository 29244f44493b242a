/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the booking engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (defaults, YAML file, environment)
  3. Initialize SQLite store
  4. Assemble notifier sinks (log, Telegram, AMQP)
  5. Wire engine, lifecycle, reminder scheduler
  6. Start HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for in-memory database
  -config  Path to YAML config file (optional)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reminder scheduler (waits for the in-flight tick)
  4. Close database connection
  5. Exit

ENVIRONMENT:
  PORT, DATABASE_PATH, TELEGRAM_BOT_TOKEN, AMQP_URL override the file.
  A .env file in the working directory is loaded if present.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration schema
  - scheduler/scheduler.go: Reminder and expiry sweeps
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

	"github.com/ikigai/booking-engine/api"
	"github.com/ikigai/booking-engine/booking"
	"github.com/ikigai/booking-engine/config"
	"github.com/ikigai/booking-engine/metrics"
	"github.com/ikigai/booking-engine/notify"
	"github.com/ikigai/booking-engine/scheduler"
	"github.com/ikigai/booking-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	cfgPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	schedule := cfg.BookingSchedule()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path, schedule.Location)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Assemble notifier sinks
	notifier, closeNotify := buildNotifier(cfg)
	defer closeNotify()

	// Wire domain objects
	clock := booking.SystemClock()
	engine := booking.NewEngine(schedule, store, clock)
	lifecycle := booking.NewLifecycle(schedule, store, notifier, clock)
	m := metrics.New()

	sched := scheduler.New(store, lifecycle, notifier, clock, schedulerConfig(cfg))
	sched.Metrics = m
	sched.Start()
	defer sched.Stop()

	// Create router
	handler := api.NewHandler(engine, lifecycle, store, cfg, m)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("[Server] Listening on http://localhost:%d", cfg.Server.Port)
		log.Printf("[Server] API available at http://localhost:%d/api", cfg.Server.Port)
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

// buildNotifier fans out to every configured sink. The log sink is always
// on so a bare deployment still records what would have been sent.
func buildNotifier(cfg *config.Config) (booking.Notifier, func()) {
	sinks := notify.Multi{notify.Log{}}
	var closers []func()

	if cfg.Notify.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.AdminChatID)
		if err != nil {
			log.Printf("[Server] Telegram sink disabled: %v", err)
		} else {
			sinks = append(sinks, tg)
		}
	}

	if cfg.Notify.AMQP.URL != "" {
		pub, err := notify.NewAMQP(cfg.Notify.AMQP.URL, cfg.Notify.AMQP.Exchange)
		if err != nil {
			log.Printf("[Server] AMQP sink disabled: %v", err)
		} else {
			sinks = append(sinks, pub)
			closers = append(closers, func() { pub.Close() })
		}
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		PollInterval:      cfg.PollInterval(),
		Window:            cfg.Window(),
		FromCreation:      stdDurations(cfg.Reminders.FromCreation),
		BeforeStart:       stdDurations(cfg.Reminders.BeforeStart),
		DeleteBeforeStart: cfg.Reminders.DeleteBeforeStart.Std(),
		AdminCooldown:     cfg.Reminders.AdminCooldown.Std(),
	}
}

func stdDurations(ds []config.Duration) []time.Duration {
	out := make([]time.Duration, len(ds))
	for i, d := range ds {
		out[i] = d.Std()
	}
	return out
}
